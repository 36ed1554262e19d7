// Package health serves the liveness endpoint and pings an external
// healthcheck monitor.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// CountsFunc reports fix counters per platform.
type CountsFunc func(ctx context.Context) (map[string]int64, error)

// NewRouter returns the HTTP routes. counts may be nil.
func NewRouter(counts CountsFunc, logger logrus.FieldLogger) *mux.Router {
	log := logger.WithField("component", "health")
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	if counts != nil {
		router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			c, err := counts(r.Context())
			if err != nil {
				log.WithError(err).Warn("Failed to read fix counts")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unavailable"})
				return
			}
			writeJSON(w, http.StatusOK, c)
		}).Methods("GET")
	}
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server wraps the HTTP server.
type Server struct {
	srv *http.Server
	log logrus.FieldLogger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger logrus.FieldLogger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: logger.WithField("component", "health"),
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.log.Infof("HTTP server starting on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Pinger reports liveness to a healthchecks style URL.
type Pinger struct {
	client *resty.Client
	url    string
	log    logrus.FieldLogger
}

// NewPinger creates a Pinger. An empty url disables it.
func NewPinger(url string, timeout time.Duration, logger logrus.FieldLogger) *Pinger {
	return &Pinger{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		log:    logger.WithField("component", "healthchecks"),
	}
}

// Enabled reports whether a URL is configured.
func (p *Pinger) Enabled() bool { return p.url != "" }

// Ping sends one ping.
func (p *Pinger) Ping(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("healthcheck ping returned status %d", resp.StatusCode())
	}
	return nil
}

// Run pings and logs the result, for use as a scheduled job.
func (p *Pinger) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		p.log.WithError(err).Warn("Healthcheck ping failed")
	}
}
