// Package api exposes a read-only HTTP status endpoint for servers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"go.dedis.ch/onet/v3/log"
)

// Info describes the process behind the endpoint.
type Info struct {
	Role  string `json:"role"`
	Depth int    `json:"depth"`
	Nodes int    `json:"nodes"`
}

type Server struct {
	stats   *monitor.SiteStats
	info    func() Info
	started time.Time
}

// NewServer reports stats; info is called on every request so it reflects
// retraining.
func NewServer(stats *monitor.SiteStats, info func() Info) *Server {
	return &Server{stats: stats, info: info, started: time.Now()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	log.Lvl1("status endpoint listening on", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]interface{}{
		"info":       s.info(),
		"stats":      s.stats.Snapshot(),
		"uptime_sec": int64(time.Since(s.started).Seconds()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn("encoding stats:", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	snap := s.stats.Snapshot()
	info := s.info()
	lines := []struct {
		name  string
		value interface{}
	}{
		{"ppdt_rounds_total", snap.Rounds},
		{"ppdt_paillier_comparisons_total", snap.PaillierComparisons},
		{"ppdt_elgamal_comparisons_total", snap.ElGamalComparisons},
		{"ppdt_terminal_total", snap.Terminal},
		{"ppdt_continue_total", snap.Continue},
		{"ppdt_no_data_total", snap.NoData},
		{"ppdt_failures_total", snap.Failures},
		{"ppdt_trainings_total", snap.Trainings},
		{"ppdt_level_nodes", info.Nodes},
	}
	for _, l := range lines {
		fmt.Fprintf(w, "%s %v\n", l.name, l.value)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
