// Package web provides an HTTP status server for the whackamole daemon,
// exposes the command channel as a pseudo-file at /channel and pushes live
// status over a websocket at /ws.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/whackamole/internal/channel"
	"github.com/sweeney/whackamole/internal/status"
)

// Server serves the status page and the command channel over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ch         *channel.Channel
	log        logrus.FieldLogger
	livePoll   time.Duration
}

// New creates a Server that reads state from the given tracker. If ch is
// nil the /channel endpoint is not registered.
func New(addr string, tracker *status.Tracker, ch *channel.Channel, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{tracker: tracker, ch: ch, log: log, livePoll: defaultLivePoll}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleLive)
	if ch != nil {
		mux.HandleFunc("/channel", s.handleChannel)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router. Useful for tests.
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
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.WithError(err).Warn("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleChannel treats every request as one open of the pseudo-file:
// GET reads once from position 0, POST writes the body as one command.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch r.Method {
	case http.MethodGet:
		buf := make([]byte, channel.MaxResponseLen)
		n, err := s.ch.Read(buf, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			s.log.WithError(err).Warn("channel read failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(buf[:n])

	case http.MethodPost:
		n, err := s.ch.WriteFrom(r.Body)
		switch {
		case errors.Is(err, channel.ErrInvalidRequest), errors.Is(err, channel.ErrTransferFault):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case err != nil:
			s.log.WithError(err).Warn("channel write failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(strconv.Itoa(n)))

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
