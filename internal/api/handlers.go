package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/store"
	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Error codes returned in the "code" field of error bodies
const (
	codeDuplicatePath = "duplicate_path"
	codeNotFound      = "not_found"
	codeInvalidToken  = "invalid_token"
	codeBadRequest    = "bad_request"
	codeRateLimited   = "rate_limited"
	codeInternal      = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type catalogResponse struct {
	Categories        []*model.Category `json:"categories"`
	TokenMap          model.TokenMap    `json:"tokenMap"`
	Meta              model.Meta        `json:"meta"`
	Warnings          []string          `json:"warnings,omitempty"`
	Generation        string            `json:"generation"`
	DependentsWarning []string          `json:"dependentsWarning,omitempty"` // Tokens left unresolved by a deletion
}

type tokenRequest struct {
	Path  string      `json:"path"`
	Token model.Token `json:"token"`
}

type dependentsResponse struct {
	Path       string   `json:"path"`
	Dependents []string `json:"dependents"`
}

func newCatalogResponse(snap *store.Snapshot) *catalogResponse {
	categories := snap.Categories
	if categories == nil {
		categories = []*model.Category{}
	}
	return &catalogResponse{
		Categories: categories,
		TokenMap:   snap.Tokens,
		Meta:       snap.Meta(),
		Warnings:   snap.Messages(),
		Generation: snap.Generation,
	}
}

// handleList serves the catalog, optionally filtered by tier and query
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	resp := newCatalogResponse(snap)
	categories := snap.Categories
	filtered := false

	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err := model.ParseTier(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		categories = tokens.FilterByTier(categories, tier)
		filtered = true
	}
	if q := r.URL.Query().Get("q"); q != "" {
		categories = tokens.FilterByQuery(categories, q)
		filtered = true
	}

	if filtered {
		if categories == nil {
			categories = []*model.Category{}
		}
		resp.Categories = categories
		resp.TokenMap = tokens.Flatten(categories)
		resp.Meta = resp.TokenMap.Meta()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := s.store.Create(r.Context(), strings.TrimSpace(req.Path), req.Token)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCatalogResponse(snap))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := s.store.Update(r.Context(), strings.TrimSpace(req.Path), req.Token)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(snap))
}

// handleDelete takes the path from the JSON body or the "path" query parameter
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		var req tokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		path = req.Path
	}
	path = strings.TrimSpace(path)
	if path == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "path is required")
		return
	}

	result, err := s.store.Delete(r.Context(), path)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := newCatalogResponse(result.Snapshot)
	if len(result.Dependents) > 0 {
		zerolog.Ctx(r.Context()).Warn().Str("path", path).Strs("dependents", result.Dependents).Msg("deleted token had dependents")
		resp.DependentsWarning = result.Dependents
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	index, err := s.pipeline.Usage(r.Context(), refresh)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "path is required")
		return
	}
	deps, err := s.store.Dependents(path)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if deps == nil {
		deps = []string{}
	}
	writeJSON(w, http.StatusOK, dependentsResponse{Path: path, Dependents: deps})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pipeline.Reload(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": snap.Generation,
		"tokens":     len(snap.Tokens),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeStoreError maps mutation errors to status codes
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicatePath):
		writeError(w, http.StatusConflict, codeDuplicatePath, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, codeInvalidToken, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
