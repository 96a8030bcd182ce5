package txadmin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/Maxos-programming/txAdmin/bantemplate"
)

const apiKeyHeader = "X-API-Key"

type logResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newLogResponseWriter(w http.ResponseWriter) *logResponseWriter {
	return &logResponseWriter{w, http.StatusOK}
}

func (lrw *logResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// APIServer exposes the template collection and the ban ledger over HTTP.
type APIServer struct {
	templates bantemplate.TemplateStore
	bans      bantemplate.BanMgr
	checkKey  func(key string) bool
	reload    func() error
	logger    Logger
	handler   http.Handler

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID bantemplate.IDFunc
}

// NewAPIServer wires the API routes. checkKey guards every route that changes state;
// reloadFunc is called by the reload endpoint.
func NewAPIServer(
	templates bantemplate.TemplateStore,
	bans bantemplate.BanMgr,
	checkKey func(key string) bool,
	reloadFunc func() error,
	logger Logger,
) *APIServer {
	srv := APIServer{
		templates: templates,
		bans:      bans,
		checkKey:  checkKey,
		reload:    reloadFunc,
		logger:    logger,
		Now:       time.Now,
		NewID:     bantemplate.NewID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/templates", srv.ListTemplates)
	mux.HandleFunc("GET /api/v1/templates/{id}", srv.GetTemplate)
	mux.Handle("POST /api/v1/templates", srv.requireKey(srv.CreateTemplate))
	mux.Handle("PUT /api/v1/templates/{id}", srv.requireKey(srv.UpdateTemplate))
	mux.Handle("DELETE /api/v1/templates/{id}", srv.requireKey(srv.DeleteTemplate))
	mux.HandleFunc("POST /api/v1/templates/validate", srv.ValidateTemplate)
	mux.HandleFunc("POST /api/v1/templates/{id}/preview", srv.PreviewTemplate)
	mux.Handle("POST /api/v1/bans", srv.requireKey(srv.IssueBan))
	mux.HandleFunc("GET /api/v1/bans/{identifier}", srv.GetBan)
	mux.Handle("POST /api/v1/reload", srv.requireKey(srv.ReloadHandler))

	srv.handler = srv.logMiddleware(srv.recoverMiddleware(mux))

	return &srv
}

func (srv *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.handler.ServeHTTP(w, r)
}

func (srv *APIServer) Serve(addr string) error {
	return http.ListenAndServe(addr, srv)
}

func (srv *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := newLogResponseWriter(w)
		next.ServeHTTP(lrw, r)

		srv.logger.Infow("req", "method", r.Method, "url", r.URL.Path, "remoteAddr", r.RemoteAddr, "response_code", lrw.statusCode)
	})
}

// recoverMiddleware logs panics instead of crashing.
func (srv *APIServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				srv.logger.Errorw("PANIC", "err", rec, "trace", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (srv *APIServer) requireKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !srv.checkKey(r.Header.Get(apiKeyHeader)) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or missing API key"})
			return
		}
		next(w, r)
	})
}

func (srv *APIServer) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := srv.templates.Search(r.URL.Query().Get("q"))
	if templates == nil {
		templates = []bantemplate.Template{}
	}

	writeJSON(w, http.StatusOK, templates)
}

func (srv *APIServer) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := srv.templates.Get(r.PathValue("id"))
	if err != nil {
		srv.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tmpl)
}

func (srv *APIServer) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in bantemplate.EditorInput
	if !decodeBody(w, r, &in) {
		return
	}

	tmpl, err := bantemplate.PrepareTemplate(in, srv.NewID)
	if err != nil {
		srv.writeError(w, err)
		return
	}

	if err := srv.templates.Create(tmpl); err != nil {
		srv.writeError(w, err)
		return
	}

	srv.logger.Infow("template created", "id", tmpl.ID, "duration", tmpl.Duration.LongString())
	writeJSON(w, http.StatusCreated, tmpl)
}

func (srv *APIServer) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in bantemplate.EditorInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.ID = r.PathValue("id")

	tmpl, err := bantemplate.PrepareTemplate(in, srv.NewID)
	if err != nil {
		srv.writeError(w, err)
		return
	}

	if err := srv.templates.Update(tmpl); err != nil {
		srv.writeError(w, err)
		return
	}

	srv.logger.Infow("template updated", "id", tmpl.ID)
	writeJSON(w, http.StatusOK, tmpl)
}

func (srv *APIServer) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := srv.templates.Delete(id); err != nil {
		srv.writeError(w, err)
		return
	}

	srv.logger.Infow("template deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ValidateTemplate checks an arbitrary JSON object against the template rules without
// storing it.
func (srv *APIServer) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var candidate map[string]any
	if !decodeBody(w, r, &candidate) {
		return
	}

	tmpl, err := bantemplate.ValidateTemplate(candidate)
	if err != nil {
		srv.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tmpl)
}

type previewRequest struct {
	Values map[string]string `json:"values"`
}

type previewResponse struct {
	bantemplate.Application
	Short      string   `json:"short"`
	Long       string   `json:"long"`
	Unused     []string `json:"unusedSpacers,omitempty"`
	Undeclared []string `json:"undeclaredTokens,omitempty"`
}

// PreviewTemplate applies a stored template to the posted spacer values. Missing values
// fall back to placeholders; values sent as empty strings are used as is.
func (srv *APIServer) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tmpl, err := srv.templates.Get(r.PathValue("id"))
	if err != nil {
		srv.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Application: bantemplate.ApplyTemplate(*tmpl, req.Values),
		Short:       tmpl.Duration.ShortString(),
		Long:        tmpl.Duration.LongString(),
		Unused:      tmpl.UnusedSpacers(),
		Undeclared:  tmpl.UndeclaredTokens(),
	})
}

type banRequest struct {
	Identifier string            `json:"identifier"`
	TemplateID string            `json:"templateId"`
	Values     map[string]string `json:"values"`
}

// IssueBan bans a player with a reason and duration taken from a template.
func (srv *APIServer) IssueBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Identifier == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "identifier is required", Field: "identifier"})
		return
	}

	tmpl, err := srv.templates.Get(req.TemplateID)
	if err != nil {
		srv.writeError(w, err)
		return
	}

	record := bantemplate.Issue(*tmpl, req.Values, srv.Now())
	if err := srv.bans.Add(req.Identifier, record); err != nil {
		srv.writeError(w, fmt.Errorf("add ban: %w", err))
		return
	}

	srv.logger.Infow("ban issued", "identifier", req.Identifier, "template", tmpl.ID, "reason", record.Reason, "until", record.Until)
	writeJSON(w, http.StatusCreated, record)
}

type banStatus struct {
	Banned bool                   `json:"banned"`
	Ban    *bantemplate.BanRecord `json:"ban,omitempty"`
}

func (srv *APIServer) GetBan(w http.ResponseWriter, r *http.Request) {
	banned, record := srv.bans.IsBanned(r.PathValue("identifier"), srv.Now())

	writeJSON(w, http.StatusOK, banStatus{Banned: banned, Ban: record})
}

func (srv *APIServer) ReloadHandler(w http.ResponseWriter, _ *http.Request) {
	if err := srv.reload(); err != nil {
		srv.writeError(w, fmt.Errorf("reload: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"msg": "config reloaded"})
}

type errorResponse struct {
	Error  string                   `json:"error"`
	Field  string                   `json:"field,omitempty"`
	Issues []bantemplate.FieldError `json:"issues,omitempty"`
}

func (srv *APIServer) writeError(w http.ResponseWriter, err error) {
	var verr *bantemplate.TemplateValidationError
	var eerr *bantemplate.EditorError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid ban template", Issues: verr.Errors})
	case errors.As(err, &eerr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: eerr.Message, Field: eerr.Field})
	case errors.Is(err, bantemplate.ErrTemplateNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, bantemplate.ErrTemplateExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		srv.logger.Errorw("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
