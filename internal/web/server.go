// Package web provides an HTTP status server for the fridge daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/fridge-daemon/internal/snapshot"
	"github.com/sweeney/fridge-daemon/internal/status"
)

// DoorSwitch is a door signal that can be driven by hand, such as
// gpio.ManualSource.
type DoorSwitch interface {
	SimulateOpen()
	SimulateClosed()
}

// Options selects the optional endpoints.
type Options struct {
	// SnapshotPath enables GET /snapshot.json when set.
	SnapshotPath string
	// SnapshotMaxAge makes /snapshot.json answer 503 for older snapshots.
	// Zero disables the check.
	SnapshotMaxAge time.Duration
	// Door enables POST /door/open and /door/close when set.
	Door DoorSwitch
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
	now        func() time.Time
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, opts: opts, now: time.Now}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if opts.SnapshotPath != "" {
		r.HandleFunc("/snapshot.json", s.handleSnapshot).Methods(http.MethodGet)
	}
	if opts.Door != nil {
		r.HandleFunc("/door/{action:open|close}", s.handleDoor).Methods(http.MethodPost)
	}

	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	h = handlers.LoggingHandler(log.Writer(), h)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var (
		snap snapshot.Snapshot
		err  error
	)
	if s.opts.SnapshotMaxAge > 0 {
		snap, err = snapshot.ReadFresh(s.opts.SnapshotPath, s.opts.SnapshotMaxAge, s.now())
	} else {
		snap, err = snapshot.Read(s.opts.SnapshotPath)
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot published yet"})
	case errors.Is(err, snapshot.ErrStale):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case err != nil:
		log.Printf("web: read snapshot: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot unreadable"})
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleDoor(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	if action == "open" {
		s.opts.Door.SimulateOpen()
	} else {
		s.opts.Door.SimulateClosed()
	}
	log.Printf("web: door %s requested", action)
	// The monitor confirms the change on its next poll.
	writeJSON(w, http.StatusAccepted, map[string]string{"door": action})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
