package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

const (
	restMaxBodyBytes    = 256 << 10
	restMaxHistoryLimit = 100
	restMaxSnippetLimit = 100
)

// restHandler serves the history and snippet collaborator endpoints.
// Every route requires a bearer token.
type restHandler struct {
	log    *slog.Logger
	store  Store
	auth   *Authenticator
	limits *limiterSet
}

func (h *restHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ai/history", h.authed(h.listHistory))
	mux.HandleFunc("DELETE /api/ai/history/{id}", h.authed(h.deleteHistory))
	mux.HandleFunc("GET /api/ai/rate-limit", h.authed(h.rateLimit))

	mux.HandleFunc("GET /api/snippets", h.authed(h.listSnippets))
	mux.HandleFunc("POST /api/snippets", h.authed(h.createSnippet))
	mux.HandleFunc("GET /api/snippets/{id}", h.authed(h.getSnippet))
	mux.HandleFunc("PUT /api/snippets/{id}", h.authed(h.updateSnippet))
	mux.HandleFunc("DELETE /api/snippets/{id}", h.authed(h.deleteSnippet))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user User)

func (h *restHandler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.auth.FromBearer(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, user)
	}
}

// ---- history ----

func (h *restHandler) listHistory(w http.ResponseWriter, r *http.Request, user User) {
	skip, limit, ok := pageParams(w, r, history.DefaultLimit, restMaxHistoryLimit)
	if !ok {
		return
	}
	items, err := h.store.ListExchanges(r.Context(), user.ID, skip, limit)
	if err != nil {
		h.fail(w, "history.list.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Chat history retrieved successfully", items)
}

func (h *restHandler) deleteHistory(w http.ResponseWriter, r *http.Request, user User) {
	if err := h.store.DeleteExchange(r.Context(), user.ID, r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Chat history not found")
			return
		}
		h.fail(w, "history.delete.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Chat history deleted successfully", nil)
}

func (h *restHandler) rateLimit(w http.ResponseWriter, _ *http.Request, user User) {
	rl := h.limits.get(user.ID)
	writeData(w, http.StatusOK, "Rate limit status retrieved", api.RateLimit{
		Remaining:     rl.Remaining(time.Now().UTC()),
		Total:         rl.Limit(),
		WindowMinutes: int(rl.Window() / time.Minute),
	})
}

// ---- snippets ----

func (h *restHandler) listSnippets(w http.ResponseWriter, r *http.Request, user User) {
	skip, limit, ok := pageParams(w, r, 50, restMaxSnippetLimit)
	if !ok {
		return
	}
	items, err := h.store.ListSnippets(r.Context(), user.ID, api.SnippetQuery{
		Search: r.URL.Query().Get("search"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, "snippets.list.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Snippets retrieved successfully", items)
}

func (h *restHandler) createSnippet(w http.ResponseWriter, r *http.Request, user User) {
	var in api.SnippetInput
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeValidation(w, "title", "Field required")
		return
	}
	if strings.TrimSpace(in.Code) == "" {
		writeValidation(w, "code", "Field required")
		return
	}

	sn, err := h.store.CreateSnippet(r.Context(), user.ID, in)
	if err != nil {
		if errors.Is(err, api.ErrInvalidSnippet) {
			writeValidation(w, "title", err.Error())
			return
		}
		h.fail(w, "snippets.create.fail", err)
		return
	}
	writeData(w, http.StatusCreated, "Snippet created successfully", sn)
}

func (h *restHandler) getSnippet(w http.ResponseWriter, r *http.Request, user User) {
	sn, err := h.store.GetSnippet(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		h.snippetErr(w, "snippets.get.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Snippet retrieved successfully", sn)
}

func (h *restHandler) updateSnippet(w http.ResponseWriter, r *http.Request, user User) {
	var patch api.SnippetPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeValidation(w, "title", "String should have at least 1 character")
		return
	}

	sn, err := h.store.UpdateSnippet(r.Context(), user.ID, r.PathValue("id"), patch)
	if err != nil {
		h.snippetErr(w, "snippets.update.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Snippet updated successfully", sn)
}

func (h *restHandler) deleteSnippet(w http.ResponseWriter, r *http.Request, user User) {
	if err := h.store.DeleteSnippet(r.Context(), user.ID, r.PathValue("id")); err != nil {
		h.snippetErr(w, "snippets.delete.fail", err)
		return
	}
	writeData(w, http.StatusOK, "Snippet deleted successfully", nil)
}

func (h *restHandler) snippetErr(w http.ResponseWriter, event string, err error) {
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Snippet not found")
		return
	}
	h.fail(w, event, err)
}

func (h *restHandler) fail(w http.ResponseWriter, event string, err error) {
	h.log.Error(event, "err", err)
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// ---- helpers ----

func pageParams(w http.ResponseWriter, r *http.Request, defLimit, maxLimit int) (skip, limit int, ok bool) {
	q := r.URL.Query()
	skip, limit = 0, defLimit

	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidation(w, "skip", "Input should be greater than or equal to 0")
			return 0, 0, false
		}
		skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			writeValidation(w, "limit", "Input should be between 1 and "+strconv.Itoa(maxLimit))
			return 0, 0, false
		}
		limit = n
	}
	return skip, limit, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, restMaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeValidation(w, "body", "Invalid JSON")
		return false
	}
	return true
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeData(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Status: "success", Message: msg, Data: data})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationItem{
		"detail": {{Loc: []string{"body", field}, Msg: msg, Type: "value_error"}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
