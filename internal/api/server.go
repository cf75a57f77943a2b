// Package api provides the HTTP and WebSocket control surface for the engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"hkmacro/internal/engine"
	"hkmacro/internal/executor"
	"hkmacro/internal/history"
	"hkmacro/internal/macro"
	"hkmacro/internal/protocol"
	"hkmacro/internal/store"
	"hkmacro/internal/ui"
)

const defaultHistoryLimit = 50

// Server provides HTTP API for remote control
type Server struct {
	engine  *engine.Engine
	history *history.Repository
	token   string
	version string
	wsMgr   *WSManager

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server. hist may be nil, in which case the
// history endpoint reports 503.
func NewServer(eng *engine.Engine, hist *history.Repository, token, version string) *Server {
	s := &Server{
		engine:  eng,
		history: hist,
		token:   token,
		version: version,
	}
	s.wsMgr = newWSManager(s)
	eng.Store().Subscribe(s.onStoreEvent)
	return s
}

// Handler returns the routed handler with auth and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", ui.Handler(s.version))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/macros", s.handleListMacros)
	mux.HandleFunc("POST /api/macros", s.handleCreateMacro)
	mux.HandleFunc("GET /api/macros/{id}", s.handleGetMacro)
	mux.HandleFunc("PUT /api/macros/{id}", s.handleUpdateMacro)
	mux.HandleFunc("DELETE /api/macros/{id}", s.handleDeleteMacro)
	mux.HandleFunc("POST /api/macros/{id}/execute", s.handleExecute)
	mux.HandleFunc("POST /api/macros/{id}/clone", s.handleClone)
	mux.HandleFunc("POST /api/stop", s.handleControl(s.engine.Stop))
	mux.HandleFunc("POST /api/pause", s.handleControl(s.engine.Pause))
	mux.HandleFunc("POST /api/resume", s.handleControl(s.engine.Resume))
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /ws", s.wsMgr.handleWebSocket)
	s.wsMgr.ensureStarted()
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// DashboardURL is the browser address of the dashboard for port.
func (s *Server) DashboardURL(port int) string {
	u := fmt.Sprintf("http://127.0.0.1:%d/", port)
	if s.token != "" {
		u += "?token=" + url.QueryEscape(s.token)
	}
	return u
}

// Start starts the API server on the specified port. It blocks until the
// server stops.
func (s *Server) Start(port int) error {
	// tcp4 avoids IPv6-only binding issues on Windows
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("API: Starting server on %s", addr)

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", addr, err)
		log.Printf("Note: hotkeys keep working without the remote API.")
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsMgr.stop()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) onStoreEvent(ev store.Event) {
	msg, err := protocol.New(protocol.TypeMacrosChanged, protocol.MacrosChangedPayload{
		Change:  string(ev.Type),
		MacroID: ev.MacroID,
	})
	if err != nil {
		return
	}
	s.wsMgr.Broadcast(msg)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		if r.URL.Path == "/health" || r.URL.Path == "/" {
			next.ServeHTTP(w, r)
			return
		}

		if !localOrigin(r) {
			log.Printf("API: Refused %s %s from origin %s", r.Method, r.URL.Path, r.Header.Get("Origin"))
			http.Error(w, "Forbidden origin", http.StatusForbidden)
			return
		}

		if s.token != "" && !s.authorized(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// tokenless POSTs must be JSON, which a cross-site form cannot send
		if s.token == "" && r.Method == http.MethodPost && !isJSON(r) {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authorized accepts a bearer header, or a token query parameter for
// browser WebSocket clients that cannot set headers.
func (s *Server) authorized(r *http.Request) bool {
	if r.Header.Get("Authorization") == "Bearer "+s.token {
		return true
	}
	return r.URL.Path == "/ws" && r.URL.Query().Get("token") == s.token
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

type macroView struct {
	ID string `json:"id"`
	store.Record
}

type summaryView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Hotkey      string    `json:"hotkey"`
	Enabled     bool      `json:"enabled"`
	ActionCount int       `json:"action_count"`
	RepeatCount int       `json:"repeat_count"`
	ModifiedAt  time.Time `json:"modified_at"`
}

type executeResponse struct {
	RunID   string `json:"run_id"`
	MacroID string `json:"macro_id"`
	Status  string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var ve *macro.ValidationError
	switch {
	case errors.Is(err, engine.ErrMacroNotFound):
		code = http.StatusNotFound
	case errors.Is(err, executor.ErrAlreadyRunning):
		code = http.StatusConflict
	case errors.Is(err, executor.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, executor.ErrMacroDisabled), errors.As(err, &ve):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, executor.ErrInputUnavailable):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListMacros(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Store().List()
	out := make([]summaryView, len(list))
	for i, m := range list {
		out[i] = summaryView{
			ID:          m.ID,
			Name:        m.Name,
			Category:    m.Category,
			Hotkey:      m.Hotkey,
			Enabled:     m.Enabled,
			ActionCount: m.ActionCount,
			RepeatCount: m.RepeatCount,
			ModifiedAt:  m.ModifiedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, ok := s.engine.Store().Get(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", engine.ErrMacroNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, macroView{ID: id, Record: store.ToRecord(&m)})
}

func decodeRecord(w http.ResponseWriter, r *http.Request, id string) (*macro.Macro, bool) {
	var rec store.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "Invalid macro data", http.StatusBadRequest)
		return nil, false
	}
	m, err := store.FromRecord(id, rec)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return nil, false
	}
	return m, true
}

func (s *Server) handleCreateMacro(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeRecord(w, r, macro.NewID())
	if !ok {
		return
	}
	hk := m.Hotkey
	m.Hotkey = ""
	id, err := s.engine.AddMacro(*m)
	if err != nil {
		writeError(w, err)
		return
	}
	if hk != "" {
		if err := s.engine.BindHotkey(id, hk); err != nil {
			log.Printf("API: Hotkey %q not bound for %s: %v", hk, id, err)
		}
	}
	log.Printf("API: Created macro '%s' (%s)", m.Name, id)
	s.respondMacro(w, http.StatusCreated, id)
}

func (s *Server) handleUpdateMacro(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	next, ok := decodeRecord(w, r, id)
	if !ok {
		return
	}
	err := s.engine.UpdateMacro(id, func(m *macro.Macro) error {
		hk := m.Hotkey
		*m = *next
		m.Hotkey = hk
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if cur, _ := s.engine.Store().Get(id); cur.Hotkey != next.Hotkey {
		if err := s.engine.BindHotkey(id, next.Hotkey); err != nil {
			writeError(w, err)
			return
		}
	}
	s.respondMacro(w, http.StatusOK, id)
}

func (s *Server) respondMacro(w http.ResponseWriter, code int, id string) {
	m, ok := s.engine.Store().Get(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", engine.ErrMacroNotFound, id))
		return
	}
	writeJSON(w, code, macroView{ID: id, Record: store.ToRecord(&m)})
}

func (s *Server) handleDeleteMacro(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteMacro(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.CloneMacro(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.respondMacro(w, http.StatusCreated, id)
}

// handleExecute handles POST /api/macros/{id}/execute with an optional
// {"variables": {...}} body.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body protocol.ExecutePayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid execute request", http.StatusBadRequest)
			return
		}
	}
	id := r.PathValue("id")
	run, err := s.engine.Execute(id, body.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("API: Started macro %s (remote request from %s)", id, r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, executeResponse{RunID: run.ID, MacroID: id, Status: run.Status().String()})
}

func (s *Server) handleControl(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, err)
			return
		}
		s.handleStatus(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, ok := s.engine.Current()
	st := protocol.StatusFromInfo(info, ok)
	st.Status = s.engine.Status().String()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Statistics())
}

// handleHistory handles GET /api/history?macro=<id>&limit=<n>
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		entries []history.Entry
		err     error
	)
	if id := r.URL.Query().Get("macro"); id != "" {
		entries, err = s.history.ForMacro(r.Context(), id, limit)
	} else {
		entries, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		log.Printf("API: History query failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
