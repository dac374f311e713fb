// Package server implements the capture listener, the dashboard API and
// the lifecycle of their HTTP servers.
package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/auth"
	"github.com/rsclarke/hookcatch/internal/logging"
	"github.com/rsclarke/hookcatch/internal/logstore"
	"github.com/rsclarke/hookcatch/internal/plugins"
	"github.com/rsclarke/hookcatch/internal/query"
	"github.com/rsclarke/hookcatch/internal/types"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal identifies the caller of an authenticated request: a dashboard
// user or an API key prefix.
type Principal struct {
	Username  string
	APIKeyID  int64
	KeyPrefix string
}

func getPrincipal(r *http.Request) Principal {
	if p, ok := r.Context().Value(principalContextKey).(Principal); ok {
		return p
	}
	return Principal{}
}

// APIServer serves the dashboard API over the log store.
type APIServer struct {
	DB          *sql.DB
	Store       *logstore.Store
	Sessions    *auth.SessionManager
	Credentials auth.Credentials
	Plugins     plugins.PluginRegistry
	Logger      *zap.Logger
}

// AuthMiddleware admits requests carrying a live session cookie or a valid
// bearer API key.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.authenticate(r); ok {
			ctx := context.WithValue(r.Context(), principalContextKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		writeJSON(w, http.StatusUnauthorized, types.Response{Error: types.ErrMsgUnauthorized})
	})
}

func (s *APIServer) authenticate(r *http.Request) (Principal, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		apiKey, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return Principal{}, false
		}
		stored, err := auth.Authenticate(s.DB, apiKey)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidKey) && !errors.Is(err, auth.ErrInvalidKeyFormat) {
				s.Logger.Error("api key lookup failed", zap.Error(err))
			}
			return Principal{}, false
		}
		return Principal{APIKeyID: stored.ID, KeyPrefix: stored.KeyPrefix}, true
	}

	if s.Sessions == nil {
		return Principal{}, false
	}
	sess, err := s.Sessions.Get(r)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidSession) && !errors.Is(err, auth.ErrExpiredSession) {
			s.Logger.Error("session lookup failed", zap.Error(err))
		}
		return Principal{}, false
	}
	return Principal{Username: sess.Username}, true
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Post("/api/action", s.handleAction)
		r.Route("/api/files", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Get("/{date}", s.handleGetFile)
			r.Delete("/{date}", s.handleDeleteFile)
			r.Get("/{date}/requests", s.handleQueryRequests)
			r.Delete("/{date}/requests/{index}", s.handleDeleteRequest)
		})
	})

	return r
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{Status: "ok"}
	if s.Plugins != nil {
		for _, info := range s.Plugins.ListPlugins() {
			resp.Plugins = append(resp.Plugins, info.ID)
		}
	}
	writeJSON(w, http.StatusOK, types.Response{Success: true, Data: resp})
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeJSON(w, http.StatusNotFound, types.Response{Error: "dashboard login disabled"})
		return
	}

	req, err := decodeLogin(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, types.Response{Error: err.Error()})
		return
	}

	if !s.Credentials.Verify(req.Username, req.Password) {
		s.Logger.Warn("dashboard login failed",
			logging.Username(req.Username),
			logging.RemoteIP(r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, types.Response{Error: "invalid credentials"})
		return
	}

	sess, err := s.Sessions.Create(w, req.Username)
	if err != nil {
		s.Logger.Error("create session failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.Response{Error: "failed to create session"})
		return
	}

	s.Logger.Info("dashboard login", logging.Username(sess.Username))
	writeJSON(w, http.StatusOK, types.Response{
		Success: true,
		Data: types.LoginResponse{
			Username:  sess.Username,
			ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC().Format(time.RFC3339),
		},
	})
}

// decodeLogin reads credentials from a JSON body or a form.
func decodeLogin(w http.ResponseWriter, r *http.Request) (types.LoginRequest, error) {
	var req types.LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && err != io.EOF {
			return req, errors.New("invalid JSON")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form")
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	return req, nil
}

func (s *APIServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.Sessions != nil {
		if err := s.Sessions.Clear(w, r); err != nil {
			s.Logger.Warn("clear session failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, types.Response{Success: true})
}

func (s *APIServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.Store.ListFiles()
	if err != nil {
		s.Logger.Error("list day files failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.Response{Error: "failed to list files"})
		return
	}
	writeJSON(w, http.StatusOK, types.Response{Success: true, Data: files})
}

func (s *APIServer) handleGetFile(w http.ResponseWriter, r *http.Request) {
	s.getRequests(w, chi.URLParam(r, "date"))
}

func (s *APIServer) handleQueryRequests(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.Load(chi.URLParam(r, "date"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}
	f := query.Filter{
		Method:      q.Get("method"),
		ContentType: q.Get("content_type"),
		Search:      q.Get("q"),
	}

	writeJSON(w, http.StatusOK, types.Response{Success: true, Data: query.Run(records, f, page)})
}

func (s *APIServer) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.deleteFile(w, r, chi.URLParam(r, "date"))
}

func (s *APIServer) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	s.deleteRequest(w, r, chi.URLParam(r, "date"), chi.URLParam(r, "index"))
}

// handleAction serves the form-encoded action protocol:
// action=get_requests|delete_request|delete_file with filename and index.
func (s *APIServer) handleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.Response{Error: "invalid form"})
		return
	}

	filename := r.PostForm.Get("filename")
	switch r.PostForm.Get("action") {
	case "get_requests":
		s.getRequests(w, filename)
	case "delete_request":
		s.deleteRequest(w, r, filename, r.PostForm.Get("index"))
	case "delete_file":
		s.deleteFile(w, r, filename)
	default:
		writeJSON(w, http.StatusBadRequest, types.Response{Error: types.ErrMsgUnknownAction})
	}
}

func (s *APIServer) getRequests(w http.ResponseWriter, date string) {
	records, err := s.Store.Load(date)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Response{Success: true, Data: records})
}

func (s *APIServer) deleteRequest(w http.ResponseWriter, r *http.Request, date, rawIndex string) {
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		writeJSON(w, http.StatusOK, types.Response{Error: types.ErrMsgRequestNotFound})
		return
	}
	if err := s.Store.DeleteRecord(date, index); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.Logger.Info("request deleted",
		logging.File(date),
		logging.Index(index),
		s.actor(r))
	writeJSON(w, http.StatusOK, types.Response{Success: true})
}

func (s *APIServer) deleteFile(w http.ResponseWriter, r *http.Request, date string) {
	if err := s.Store.DeleteFile(date); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.Logger.Info("day file deleted", logging.File(date), s.actor(r))
	writeJSON(w, http.StatusOK, types.Response{Success: true})
}

func (s *APIServer) actor(r *http.Request) zap.Field {
	p := getPrincipal(r)
	if p.Username != "" {
		return logging.Username(p.Username)
	}
	return zap.String("api_key", p.KeyPrefix)
}

// writeStoreError maps log store failures onto the dashboard protocol:
// missing data is a 200 with success=false, anything else is a 500.
func (s *APIServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, logstore.ErrFileNotFound), errors.Is(err, logstore.ErrInvalidDate):
		writeJSON(w, http.StatusOK, types.Response{Error: types.ErrMsgFileNotFound})
	case errors.Is(err, logstore.ErrRecordNotFound):
		writeJSON(w, http.StatusOK, types.Response{Error: types.ErrMsgRequestNotFound})
	default:
		s.Logger.Error("log store failure", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.Response{Error: "storage error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
