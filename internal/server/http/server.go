package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/strand/internal/driver"
)

// Server exposes the driver's status over plain HTTP for dashboards and
// scripts that do not speak gRPC.
type Server struct {
	drv *driver.Driver
	srv *http.Server
	lis net.Listener
}

// New constructs the status server.
func New(drv *driver.Driver) *Server {
	mux := http.NewServeMux()
	s := &Server{drv: drv, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/publications", s.handlePublications)
	mux.HandleFunc("/v1/counters", s.handleCounters)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// publicationView mirrors driver.PublicationInfo with the registration id as
// a string so int64 precision survives JSON consumers.
type publicationView struct {
	RegistrationID string   `json:"registrationId"`
	Channel        string   `json:"channel"`
	StreamID       int32    `json:"streamId"`
	SessionID      int32    `json:"sessionId"`
	InitialTermID  int32    `json:"initialTermId"`
	LogFileName    string   `json:"logFileName"`
	Position       int64    `json:"position"`
	Limit          int64    `json:"limit"`
	Connected      bool     `json:"connected"`
	Subscribers    int      `json:"subscribers"`
	Destinations   []string `json:"destinations,omitempty"`
}

func (s *Server) handlePublications(w http.ResponseWriter, r *http.Request) {
	pubs := s.drv.ListPublications()
	views := make([]publicationView, 0, len(pubs))
	for _, p := range pubs {
		views = append(views, publicationView{
			RegistrationID: strconv.FormatInt(p.RegistrationID, 10),
			Channel:        p.Channel,
			StreamID:       p.StreamID,
			SessionID:      p.SessionID,
			InitialTermID:  p.InitialTermID,
			LogFileName:    p.LogFileName,
			Position:       p.Position,
			Limit:          p.Limit,
			Connected:      p.Connected,
			Subscribers:    p.Subscribers,
			Destinations:   p.Destinations,
		})
	}
	writeJSON(w, map[string]any{"publications": views})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	snapshot := s.drv.CountersSnapshot()
	counters := make(map[string]int64, len(snapshot))
	for regID, limit := range snapshot {
		counters[strconv.FormatInt(regID, 10)] = limit
	}
	writeJSON(w, map[string]any{"counters": counters})
}
