package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	recordsTimeout     = 3 * time.Second
)

// RecordsHandler exposes the stored records.
type RecordsHandler struct {
	store   store.Store
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecordsHandler wires the store. runner may be nil; when set, wipes are
// refused while a run is active.
func NewRecordsHandler(st store.Store, runner Runner, logger *zap.Logger) *RecordsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordsHandler{
		store:   st,
		runner:  runner,
		timeout: recordsTimeout,
		logger:  logger,
	}
}

// List handles GET /v1/records?status=&limit=&offset=. Records are ordered
// by name.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status profile.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err = parseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	records, err := h.store.ReadAll(ctx)
	if err != nil {
		h.logger.Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Status == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	total := len(records)
	records = page(records, limit, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

// Get handles GET /v1/records/{name}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	rec, err := h.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("get record failed", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Stats handles GET /v1/records/stats.
func (h *RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	records, err := h.store.ReadAll(ctx)
	if err != nil {
		h.logger.Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, store.Summarize(records))
}

// Wipe handles DELETE /v1/records.
func (h *RecordsHandler) Wipe(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	if h.runner != nil && h.runner.Running() {
		writeError(w, http.StatusConflict, "cannot wipe records while a run is in progress")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.store.Clear(ctx); err != nil {
		h.logger.Error("wipe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to wipe records")
		return
	}
	h.logger.Info("record store wiped")
	w.WriteHeader(http.StatusNoContent)
}

func page(records []profile.Record, limit, offset int) []profile.Record {
	if offset >= len(records) {
		return []profile.Record{}
	}
	end := min(offset+limit, len(records))
	return records[offset:end]
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (profile.Status, error) {
	switch strings.ToLower(input) {
	case "pending":
		return profile.StatusPending, nil
	case "verified":
		return profile.StatusVerified, nil
	case "enriched":
		return profile.StatusEnriched, nil
	case "manual_review", "manual-review", "review":
		return profile.StatusManualReview, nil
	case "failed":
		return profile.StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}
