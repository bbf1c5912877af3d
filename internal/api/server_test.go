package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-trading/tradingcore/internal/audit"
	"github.com/atlas-trading/tradingcore/internal/statemachine"
	"github.com/atlas-trading/tradingcore/internal/weight"
	"github.com/atlas-trading/tradingcore/internal/witness"
	"github.com/atlas-trading/tradingcore/pkg/coretypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()
	trail := audit.NewTrail(logger, 10, "")
	machine := statemachine.New(logger, trail)
	regime := statemachine.NewRegimeTracker()
	registry := witness.NewRegistry(logger, time.Second, nil)
	weights := weight.NewManager(logger, weight.DefaultClamps(), weight.NewHealthManager(), nil)
	cfg := Config{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second}
	return NewServer(logger, cfg, machine, regime, registry, weights, trail)
}

func TestHandleHealth_ReturnsHealthy(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %+v", body)
	}
}

func TestHandleState_ReportsCurrentState(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if body["state"] != "SYSTEM_INIT" {
		t.Fatalf("expected SYSTEM_INIT, got %+v", body)
	}
}

func TestHandleState_DoesNotMutateSharedRegime(t *testing.T) {
	s := newTestServer(t)
	observed := s.regime.Observe(nil, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	after := s.regime.Current()
	if after.StartedAt != observed.StartedAt {
		t.Fatalf("expected the read-only /v1/state handler to leave the regime envelope untouched, got StartedAt %v after %v", after.StartedAt, observed.StartedAt)
	}
}

func TestHandleAudit_ReturnsRecentRecords(t *testing.T) {
	s := newTestServer(t)
	s.trail.Append(audit.Record{Component: "test", Reason: "seed"})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	records, ok := body["records"].([]interface{})
	if !ok || len(records) == 0 {
		t.Fatalf("expected at least one audit record, got %+v", body)
	}
}

func TestHandleWitnesses_ReturnsRegisteredSet(t *testing.T) {
	s := newTestServer(t)
	def := witness.MomentumEvent(10, decimal.NewFromFloat(0.02))
	w := witness.NewEventWitness("momentum_t1", coretypes.TierCore, def, 5*time.Minute)
	if err := s.registry.Register(w, coretypes.TierCore); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/witnesses", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("expected exactly one registered witness, got %+v", body)
	}
}
