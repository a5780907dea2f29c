package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lvicentin/grana/internal/api/middleware"
	"github.com/lvicentin/grana/internal/gate"
	"github.com/lvicentin/grana/internal/pipeline"
)

// maxDocumentBytes caps uploaded document size (20 MiB).
const maxDocumentBytes = 20 << 20

// defaultUser is used when the caller sends no X-User-ID header. The service
// is built for a single household; the header exists for multi-profile
// setups.
const defaultUser = "default"

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUser
}

// ImportsHandler handles document import endpoints.
type ImportsHandler struct {
	pipe *pipeline.Pipeline
	log  zerolog.Logger
}

func NewImportsHandler(pipe *pipeline.Pipeline, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{pipe: pipe, log: log}
}

// CreateImport handles POST /api/imports. The document travels as a
// multipart form: "file" (required), plus optional "guidance" and
// "owner_name" fields.
func (h *ImportsHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	res, err := h.pipe.Submit(ctx, pipeline.Submission{
		UserID:    userID(r),
		OwnerName: r.FormValue("owner_name"),
		Data:      data,
		MIMEType:  mimeType,
		Guidance:  r.FormValue("guidance"),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	switch v := res.(type) {
	case pipeline.Committed:
		middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"status":  "committed",
			"entries": v.Entries,
			"invoice": v.Invoice,
			"dropped": v.Dropped,
		})
	case pipeline.DuplicateDetected:
		middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"status":            "duplicate",
			"due_date":          v.Prior.DueDate,
			"first_imported_at": v.Prior.ImportedAt,
		})
	case pipeline.RateLimited:
		w.Header().Set("Retry-After", strconv.Itoa(v.RetryAfterSeconds))
		middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"status":              "rate_limited",
			"retry_after_seconds": v.RetryAfterSeconds,
		})
	case pipeline.ConsentRequired:
		middleware.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
			"status":           "consent_required",
			"required_version": v.RequiredVersion,
		})
	case pipeline.NoTransactionsFound:
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"status":    "no_transactions",
			"extracted": v.Extracted,
			"dropped":   v.Dropped,
		})
	default:
		h.log.Error().Str("type", "unknown").Msg("Unhandled pipeline result")
		middleware.WriteError(w, http.StatusInternalServerError, "Unhandled result")
	}
}

// EstimateHandler serves the read-side projection.
type EstimateHandler struct {
	pipe *pipeline.Pipeline
	log  zerolog.Logger
}

func NewEstimateHandler(pipe *pipeline.Pipeline, log zerolog.Logger) *EstimateHandler {
	return &EstimateHandler{pipe: pipe, log: log}
}

// GetEstimate handles GET /api/estimate?income=5000.
func (h *EstimateHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var income float64
	if s := r.URL.Query().Get("income"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid income")
			return
		}
		income = v
	}

	proj, err := h.pipe.Estimate(ctx, userID(r), income)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build estimate")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build estimate")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"typical_monthly_expense": proj.TypicalMonthlyExpense,
		"savings_potential":       proj.SavingsPotential,
		"clean_months":            proj.CleanMonths,
		"outlier_months":          proj.OutlierMonths,
		"quality": map[string]interface{}{
			"score":      proj.Quality.Score,
			"confidence": proj.Quality.Confidence,
			"caveats":    proj.Quality.Caveats,
		},
	})
}

// ConsentHandler serves the consent record endpoints.
type ConsentHandler struct {
	gate *gate.Gate
	log  zerolog.Logger
}

func NewConsentHandler(g *gate.Gate, log zerolog.Logger) *ConsentHandler {
	return &ConsentHandler{gate: g, log: log}
}

// GetConsent handles GET /api/consent.
func (h *ConsentHandler) GetConsent(w http.ResponseWriter, r *http.Request) {
	status, err := h.gate.CheckConsent(r.Context(), userID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check consent")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check consent")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"granted":          status.Granted,
		"required_version": status.RequiredVersion,
	})
}

// PutConsent handles PUT /api/consent with body {"accepted": true|false}.
func (h *ConsentHandler) PutConsent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accepted *bool `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Accepted == nil {
		middleware.WriteError(w, http.StatusBadRequest, "Body must be {\"accepted\": true|false}")
		return
	}

	if err := h.gate.RecordConsent(r.Context(), userID(r), *req.Accepted); err != nil {
		h.log.Error().Err(err).Msg("Failed to record consent")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record consent")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"accepted": *req.Accepted})
}
