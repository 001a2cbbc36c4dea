package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chukwu07/savings-sensei/internal/store"
	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/chukwu07/savings-sensei/internal/validation"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds a single record payload.
const maxBodyBytes = 1 << 20

// Handler implements the API handlers
type Handler struct {
	store   store.Store
	secret  []byte
	version string
}

// NewHandler creates a new Handler with store.Store interface
func NewHandler(s store.Store, jwtSecret []byte, version string) *Handler {
	return &Handler{
		store:   s,
		secret:  jwtSecret,
		version: version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "action", "health", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		RecordCount: stats.Total(),
	})
}

// ListRecords handles GET /api/v1/{table}?after=&limit=
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := MustTableFromContext(ctx)
	userID := UserIDFromContext(ctx)

	q := r.URL.Query()
	if requested := q.Get("user_id"); requested != "" && requested != userID {
		WriteProblemForbidden(w, r, "user_id does not match token")
		return
	}

	limit := senseisync.DefaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, senseisync.MaxPageSize)
	}

	recs, hasMore, err := h.store.List(ctx, table, userID, q.Get("after"), limit)
	if err != nil {
		slog.Error("list failed", "component", "api", "action", "list", "table", table, "error", err)
		MapStoreError(w, r, err)
		return
	}

	resp := types.ListResponse{Records: recs, HasMore: hasMore}
	if resp.Records == nil {
		resp.Records = []types.Record{}
	}
	if hasMore {
		resp.NextCursor = recs[len(recs)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRecord handles GET /api/v1/{table}/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.store.Get(ctx, MustTableFromContext(ctx), UserIDFromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /api/v1/{table}. Re-posting an existing id
// returns the stored record unchanged.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := MustTableFromContext(ctx)

	rec, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}

	stored, err := h.store.Insert(ctx, table, rec)
	if err != nil {
		slog.Error("insert failed", "component", "api", "action", "insert", "table", table, "id", rec.ID, "error", err)
		MapStoreError(w, r, err)
		return
	}

	slog.Info("record inserted",
		"component", "api",
		"action", "insert",
		"table", table,
		"id", stored.ID,
	)
	writeJSON(w, http.StatusCreated, stored)
}

// UpdateRecord handles PUT /api/v1/{table}/{id}
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := MustTableFromContext(ctx)
	id := chi.URLParam(r, "id")

	rec, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}
	if rec.ID != id {
		WriteProblem(w, r, http.StatusBadRequest, "record id does not match path")
		return
	}

	stored, err := h.store.Update(ctx, table, rec)
	if err != nil {
		slog.Error("update failed", "component", "api", "action", "update", "table", table, "id", id, "error", err)
		MapStoreError(w, r, err)
		return
	}

	slog.Info("record updated",
		"component", "api",
		"action", "update",
		"table", table,
		"id", id,
	)
	writeJSON(w, http.StatusOK, stored)
}

// DeleteRecord handles DELETE /api/v1/{table}/{id}. Deleting a missing
// record succeeds.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := MustTableFromContext(ctx)
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(ctx, table, UserIDFromContext(ctx), id); err != nil {
		slog.Error("delete failed", "component", "api", "action", "delete", "table", table, "id", id, "error", err)
		MapStoreError(w, r, err)
		return
	}

	slog.Info("record deleted",
		"component", "api",
		"action", "delete",
		"table", table,
		"id", id,
	)
	writeJSON(w, http.StatusOK, types.DeleteResponse{ID: id, Deleted: true})
}

// decodeRecord parses and validates the request body. The user defaults to
// the token's user; any other user is rejected.
func (h *Handler) decodeRecord(w http.ResponseWriter, r *http.Request) (types.Record, bool) {
	ctx := r.Context()
	table := MustTableFromContext(ctx)
	userID := UserIDFromContext(ctx)

	var rec types.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return rec, false
	}
	if rec.ID == "" {
		rec.ID = chi.URLParam(r, "id")
	}
	if rec.UserID == "" {
		rec.UserID = userID
	}
	if rec.UserID != userID {
		WriteProblemForbidden(w, r, "user_id does not match token")
		return rec, false
	}

	if err := validation.ValidateRecord(table, rec); err != nil {
		MapStoreError(w, r, err)
		return rec, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
