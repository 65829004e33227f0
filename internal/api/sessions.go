/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/pipeline"
	"pgedge-dataset-agent/internal/schema"
)

const (
	defaultMaxUpload = 50 << 20
	maxAskBody       = 1 << 20
	previewRows      = 5
)

// AskRequest is the body of POST /api/sessions/{id}/ask
type AskRequest struct {
	Question string `json:"question"`
}

// Preview shows the first rows of an upload
type Preview struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// UploadResponse describes a loaded dataset
type UploadResponse struct {
	SessionID string        `json:"session_id"`
	Dataset   string        `json:"dataset"`
	Schema    schema.Schema `json:"schema"`
	Rows      int           `json:"rows"`
	Preview   Preview       `json:"preview"`
}

// SessionHandler serves the session endpoints
type SessionHandler struct {
	manager   *pipeline.Manager
	maxUpload int64
}

// NewSessionHandler creates a handler; maxUpload bounds multipart bodies
func NewSessionHandler(manager *pipeline.Manager, maxUpload int64) *SessionHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &SessionHandler{manager: manager, maxUpload: maxUpload}
}

// RegisterRoutes adds the session routes to r
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/schema", h.HandleSchema)
			r.Post("/ask", h.HandleAsk)
			r.Put("/dataset", h.HandleReplaceDataset)
			r.Get("/history", h.HandleHistory)
			r.Delete("/history", h.HandleClearHistory)
			r.Delete("/", h.HandleDelete)
		})
	})
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client disconnects are not actionable
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	s, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

// readUpload parses the multipart "file" field into a dataset
func (h *SessionHandler) readUpload(w http.ResponseWriter, r *http.Request) (*dataset.Dataset, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			sendError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return nil, false
		}
		sendError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return nil, false
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "no file uploaded")
		return nil, false
	}
	defer file.Close()

	ds, err := dataset.Read(file, header.Filename)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return ds, true
}

// upload loads ds into s and writes the upload response
func (h *SessionHandler) upload(w http.ResponseWriter, r *http.Request, s *pipeline.Session, ds *dataset.Dataset, status int) bool {
	sch, err := s.Upload(r.Context(), ds)
	if err != nil {
		logging.Error("upload_failed", "session", s.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "failed to load the dataset")
		return false
	}

	sendJSON(w, status, UploadResponse{
		SessionID: s.ID,
		Dataset:   ds.Name,
		Schema:    sch,
		Rows:      ds.NumRows(),
		Preview: Preview{
			Columns: ds.ColumnNames(),
			Rows:    ds.Preview(previewRows),
		},
	})
	return true
}

// HandleCreate handles POST /api/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	s := h.manager.Create()
	if !h.upload(w, r, s, ds, http.StatusCreated) {
		h.manager.Delete(s.ID)
	}
}

// HandleReplaceDataset handles PUT /api/sessions/{id}/dataset
func (h *SessionHandler) HandleReplaceDataset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ds, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	h.upload(w, r, s, ds, http.StatusOK)
}

// HandleSchema handles GET /api/sessions/{id}/schema
func (h *SessionHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sch, loaded := s.Schema()
	if !loaded {
		sendError(w, http.StatusNotFound, pipeline.MessageUploadFirst)
		return
	}
	sendJSON(w, http.StatusOK, sch)
}

// HandleAsk handles POST /api/sessions/{id}/ask
func (h *SessionHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody)).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sendJSON(w, http.StatusOK, s.Ask(r.Context(), req.Question))
}

// HandleHistory handles GET /api/sessions/{id}/history
func (h *SessionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.History(limit)
	if err != nil {
		logging.Error("history_list_failed", "session", s.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// HandleClearHistory handles DELETE /api/sessions/{id}/history
func (h *SessionHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	n, err := s.ClearHistory()
	if err != nil {
		logging.Error("history_clear_failed", "session", s.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	logging.Info("history_cleared", "session", s.ID, "entries", n)
	sendJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// HandleDelete handles DELETE /api/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Delete(chi.URLParam(r, "id")) {
		sendError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
