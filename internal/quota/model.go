package quota

import "time"

// UserQuota matches the users table schema: one row per caller-supplied
// user identifier, tracking consumption in the current period.
type UserQuota struct {
	UserIDHash string    `json:"user_id_hash"`
	CheckCount int       `json:"check_count"`
	ResetDate  time.Time `json:"reset_date"`
}

// AccessDecision is the snapshot produced by CheckAccess. The snapshot is
// carried through the pending-operation ledger and handed back to RecordUsage
// unchanged, so the recorder never re-reads the row to pick its branch.
type AccessDecision struct {
	Allowed    bool       `json:"allowed"`
	Message    string     `json:"message,omitempty"`
	IsNewUser  bool       `json:"is_new_user,omitempty"`
	NeedsReset bool       `json:"needs_reset,omitempty"`
	User       *UserQuota `json:"user,omitempty"`
}

// Usage is the read-only reporting view of a user's quota.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Policy is the deployment-configured limit: MaxOperations billable
// operations per rolling Period. Resolved once at startup and injected.
type Policy struct {
	MaxOperations int
	Period        time.Duration
}

// ExceededError is the quota denial. Its message is designed to be shown
// to the user verbatim.
type ExceededError struct {
	Message string
}

func (e *ExceededError) Error() string {
	return e.Message
}
