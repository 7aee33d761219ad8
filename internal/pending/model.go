package pending

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a consume matches no row. An unknown id, an
// already-consumed id and an id owned by another user all collapse into this
// one error; the caller cannot distinguish them.
var ErrNotFound = errors.New("pending operation not found")

// Op is one tentative AI call awaiting client confirmation. The access
// decision captured at check time travels with the row so the confirm step
// can charge usage without re-reading the quota.
type Op struct {
	ID         uuid.UUID `json:"op_id"`
	UserIDHash string    `json:"user_id_hash"`
	IsNewUser  bool      `json:"is_new_user"`
	NeedsReset bool      `json:"needs_reset"`
	PrevCount  int       `json:"prev_count"`
	CreatedAt  time.Time `json:"created_at"`
}
