// Package api is the read-only operator surface: HTTP REST for current
// state/witness/weight/audit snapshots, plus a websocket hub that broadcasts
// state transitions and aggregated results as they happen, built on
// mux.Router, rs/cors, and a gorilla/websocket upgrader. This surface never
// accepts an order, a witness registration, or a weight write; those are
// operator actions exercised through the lifecycle/weight packages
// directly, not over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/statemachine"
	"github.com/atlas-trading/tradingcore/internal/weight"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Config is the server's own bind/timeout surface, distinct from the core
// decision config.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the read-only operator surface.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	machine  *statemachine.Machine
	regime   *statemachine.RegimeTracker
	registry *witness.Registry
	weights  *weight.Manager
	trail    *audit.Trail

	hub *Hub
}

// NewServer wires a read-only operator Server over the core's live
// components.
func NewServer(logger *zap.Logger, cfg Config, machine *statemachine.Machine, regime *statemachine.RegimeTracker, registry *witness.Registry, weights *weight.Manager, trail *audit.Trail) *Server {
	s := &Server{
		logger:   logger.Named("api"),
		cfg:      cfg,
		router:   mux.NewRouter(),
		machine:  machine,
		regime:   regime,
		registry: registry,
		weights:  weights,
		trail:    trail,
		hub:      NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	go s.hub.Run()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/witnesses", s.handleWitnesses).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/weights/{id}", s.handleWeight).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/audit", s.handleAudit).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/stream", s.handleWebSocket)
}

// Start serves HTTP until the process is killed or Stop is called from
// another goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting operator api", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the HTTP server and closes every websocket client.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Broadcast pushes an event to every connected operator client - called by
// the orchestrator after a state transition or aggregator resolution.
func (s *Server) Broadcast(eventType string, payload interface{}) {
	s.hub.Broadcast(eventType, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"status": "healthy", "time": time.Now().Unix()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"state": s.machine.Current(),
	}
	if s.regime != nil {
		resp["regime"] = s.regime.Current()
	}
	writeJSON(w, resp)
}

func (s *Server) handleWitnesses(w http.ResponseWriter, r *http.Request) {
	all := make([]coretypes.WitnessMeta, 0)
	for _, tier := range []coretypes.Tier{coretypes.TierCore, coretypes.TierAuxiliary, coretypes.TierVeto} {
		all = append(all, s.registry.ListByTier(tier)...)
	}
	writeJSON(w, map[string]interface{}{"witnesses": all, "count": len(all)})
}

func (s *Server) handleWeight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, s.weights.GetWeight(id))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s.trail == nil {
		writeJSON(w, map[string]interface{}{"records": []audit.Record{}})
		return
	}
	writeJSON(w, map[string]interface{}{"records": s.trail.Recent(limit)})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
