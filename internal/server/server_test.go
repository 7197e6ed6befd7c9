package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/collector"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
	"github.com/CrazyCha/service-quota-monitor/internal/scheduler"
)

type fakeTriggerer struct {
	limitCalls int
	usageCalls int
	lastForce  bool
}

func (f *fakeTriggerer) CollectLimits(ctx context.Context, force bool) int {
	f.limitCalls++
	f.lastForce = force
	return 5
}

func (f *fakeTriggerer) CollectUsage(ctx context.Context, force bool) int {
	f.usageCalls++
	f.lastForce = force
	return 3
}

func (f *fakeTriggerer) CollectAll(ctx context.Context, force bool) (int, int) {
	return f.CollectLimits(ctx, force), f.CollectUsage(ctx, force)
}

type noopRunner struct{}

func (noopRunner) CollectLimits(ctx context.Context, force bool) int { return 0 }
func (noopRunner) CollectUsage(ctx context.Context, force bool) int  { return 0 }

func newTestServer() (*Server, *fakeTriggerer, *collector.Aggregator) {
	log := logger.NewWithWriter("error", io.Discard)
	agg := collector.New(log)
	sched := scheduler.New(noopRunner{}, 24*time.Hour, time.Hour, log)
	triggerer := &fakeTriggerer{}
	return New(agg, sched, triggerer, log), triggerer, agg
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, agg := newTestServer()
	agg.AddResult(model.NewSuccess("ec2", "111", "us-east-1", &model.QuotaInfo{
		QuotaCode: "L-1216C47A", QuotaName: "Running On-Demand Standard instances", Value: 64,
	}))

	w := doRequest(t, s, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var body struct {
		Status    string           `json:"status"`
		Scheduler scheduler.Status `json:"scheduler"`
		Results   struct {
			Total   int `json:"total"`
			Success int `json:"success"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status %q, want ok", body.Status)
	}
	if body.Results.Total != 1 || body.Results.Success != 1 {
		t.Errorf("results %+v, want 1 total 1 success", body.Results)
	}
	if body.Scheduler.Running {
		t.Error("unstarted scheduler reported running")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, agg := newTestServer()
	agg.AddResult(model.NewSuccess("ec2", "111", "us-east-1", &model.QuotaInfo{
		QuotaCode: "L-1216C47A", QuotaName: "Running On-Demand Standard instances", Value: 64,
	}))

	w := doRequest(t, s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "cloud_service_quota_limit") {
		t.Error("metrics output missing limit gauge")
	}
	if !strings.Contains(body, `quota_code="L-1216C47A"`) {
		t.Error("metrics output missing quota series labels")
	}
}

func TestTriggerLimit(t *testing.T) {
	s, triggerer, _ := newTestServer()

	w := doRequest(t, s, http.MethodPost, "/trigger/limit")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if triggerer.limitCalls != 1 {
		t.Errorf("limit collection triggered %d times, want 1", triggerer.limitCalls)
	}
	if triggerer.lastForce {
		t.Error("force applied without the query flag")
	}

	var body struct {
		Results int `json:"results"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Results != 5 {
		t.Errorf("results %d, want 5", body.Results)
	}
}

func TestTriggerUsageWithForce(t *testing.T) {
	s, triggerer, _ := newTestServer()

	w := doRequest(t, s, http.MethodPost, "/trigger/usage?force=true")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if triggerer.usageCalls != 1 {
		t.Errorf("usage collection triggered %d times, want 1", triggerer.usageCalls)
	}
	if !triggerer.lastForce {
		t.Error("force flag not passed through")
	}
}

func TestTriggerAll(t *testing.T) {
	s, triggerer, _ := newTestServer()

	w := doRequest(t, s, http.MethodPost, "/trigger/all")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if triggerer.limitCalls != 1 || triggerer.usageCalls != 1 {
		t.Errorf("got %d limit and %d usage calls, want 1 each",
			triggerer.limitCalls, triggerer.usageCalls)
	}
}

func TestTriggerRejectsGet(t *testing.T) {
	s, _, _ := newTestServer()
	w := doRequest(t, s, http.MethodGet, "/trigger/limit")
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404 for GET on a POST route", w.Code)
	}
}
