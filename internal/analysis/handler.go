package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ethnolens/ethnolens/internal/api"
	"github.com/ethnolens/ethnolens/internal/metrics"
	"github.com/ethnolens/ethnolens/internal/pending"
	"github.com/ethnolens/ethnolens/internal/quota"
)

const maxImageSize = 10 << 20 // 10 MiB

var validate = validator.New()

// Handler provides the HTTP surface for the analysis and quota endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type analyzeRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type confirmRequest struct {
	UserID string `json:"userId" validate:"required"`
	OpID   string `json:"opId" validate:"required"`
}

type premiumClickRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// Analyze handles POST /api/v1/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError("prompt and userId are required"))
		return
	}

	result, err := h.svc.AnalyzeText(r.Context(), req.UserID, req.Prompt)
	if err != nil {
		h.writeAnalyzeError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// AnalyzeImage handles POST /api/v1/analyze-image (multipart form).
func (h *Handler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("no image uploaded"))
		return
	}
	defer file.Close()

	userID := r.FormValue("userId")
	country := r.FormValue("country")
	businessType := r.FormValue("businessType")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("userId is required"))
		return
	}
	if country == "" || businessType == "" {
		api.HandleError(w, api.NewBadRequestError("country and businessType are required"))
		return
	}

	image, err := io.ReadAll(io.LimitReader(file, maxImageSize))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("reading uploaded image"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := h.svc.AnalyzeImage(r.Context(), userID, country, businessType, mimeType, image)
	if err != nil {
		h.writeAnalyzeError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Confirm handles POST /api/v1/confirm: the client acknowledges receipt of
// an analysis, converting the tentative call into charged usage.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError("userId and opId are required"))
		return
	}

	if err := h.svc.Confirm(r.Context(), req.UserID, req.OpID); err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			api.HandleError(w, api.NewNotFoundError("pending operation not found or expired"))
			return
		}
		slog.Error("confirm failed", "user_id", req.UserID, "op_id", req.OpID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "usage recorded")
}

// GetUsage handles GET /api/v1/usage?userId=...
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("userId is required"))
		return
	}

	usage, err := h.svc.Usage(r.Context(), userID)
	if err != nil {
		slog.Error("usage lookup failed", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, usage)
}

// LogPremiumClick handles POST /api/v1/log-premium-click.
func (h *Handler) LogPremiumClick(w http.ResponseWriter, r *http.Request) {
	var req premiumClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError("userId is required"))
		return
	}

	metrics.PremiumInterestTotal.Inc()
	slog.Info("premium interest", "user_id", req.UserID)
	api.JSONMessage(w, http.StatusOK, "logged")
}

// writeAnalyzeError maps service errors: a quota denial is an expected 429
// whose message is shown to the user verbatim, everything else is a 5xx.
func (h *Handler) writeAnalyzeError(w http.ResponseWriter, err error) {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		api.JSONErrorMessage(w, http.StatusTooManyRequests, exceeded.Message)
		return
	}
	slog.Error("analysis failed", "error", err)
	api.JSONErrorMessage(w, http.StatusInternalServerError, "An internal server error occurred.")
}
