package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/processor"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type panickingProcessor struct{}

func (panickingProcessor) Resolve(context.Context, processor.ImageAsset) (*processor.PipelineOutcome, error) {
	panic("boom")
}

func (panickingProcessor) ResolveURL(context.Context, string) (*processor.PipelineOutcome, error) {
	panic("boom")
}

// slowProcessor answers only after delay unless the request deadline fires first
type slowProcessor struct{ delay time.Duration }

func (s slowProcessor) wait(ctx context.Context) (*processor.PipelineOutcome, error) {
	select {
	case <-ctx.Done():
		return &processor.PipelineOutcome{Success: false, Error: ctx.Err().Error(), Provider: processor.ProviderOCRSpace}, nil
	case <-time.After(s.delay):
		return &processor.PipelineOutcome{Success: true, Text: "late"}, nil
	}
}

func (s slowProcessor) Resolve(ctx context.Context, _ processor.ImageAsset) (*processor.PipelineOutcome, error) {
	return s.wait(ctx)
}

func (s slowProcessor) ResolveURL(ctx context.Context, _ string) (*processor.PipelineOutcome, error) {
	return s.wait(ctx)
}

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := serve(NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": ok}), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	rec = serve(NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "unhealthy" || body.Checks["postgres"] != "ok" || body.Checks["redis"] == "ok" {
		t.Fatalf("unexpected body %+v", body)
	}
}

type poolPinger struct{ pingFunc }

func (poolPinger) Stats() map[string]interface{} {
	return map[string]interface{}{"open_connections": 2}
}

func TestHealthIncludesPoolStats(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	h := NewHealthHandler(map[string]Pinger{"postgres": poolPinger{ok}, "plain": ok})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats["postgres"]["open_connections"] != float64(2) {
		t.Fatalf("pool stats missing: %+v", body.Stats)
	}
	if _, ok := body.Stats["plain"]; ok {
		t.Fatalf("checks without stats must not report any: %+v", body.Stats)
	}
}

func TestServerRecoversAndTagsRequests(t *testing.T) {
	server, err := NewServer(&ServerConfig{Processor: panickingProcessor{}, TempDir: t.TempDir(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := postJSON("/ocr", `{"image_url":"https://example.com/a.png"}`)
	req.Header.Set(RequestIDHeader, "req-123")

	rec := serve(server.Handler(), req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) != "req-123" {
		t.Fatalf("request id not echoed")
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error == "" || body.Error == "boom" {
		t.Fatalf("unexpected body %+v", body)
	}

	rec = serve(server.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("a request id should be generated")
	}
}

func TestNewServerRequiresProcessor(t *testing.T) {
	if _, err := NewServer(&ServerConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSlowUpstreamAnswersBeforeWriteDeadline(t *testing.T) {
	server, err := NewServer(&ServerConfig{
		Processor:    slowProcessor{delay: 5 * time.Second},
		TempDir:      t.TempDir(),
		WriteTimeout: time.Second,
		Logger:       logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewUnstartedServer(server.Handler())
	ts.Config.WriteTimeout = server.httpServer.WriteTimeout
	ts.Start()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ocr", "application/json", strings.NewReader(`{"image_url":"https://example.com/a.png"}`))
	if err != nil {
		t.Fatalf("connection dropped before the error body: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestWriteTimeoutCoversPipeline(t *testing.T) {
	pipeline := processor.CascadeBudget(time.Minute, 1, len(processor.DefaultPSMModes))

	server, err := NewServer(&ServerConfig{Processor: panickingProcessor{}, PipelineTimeout: pipeline, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	write := server.httpServer.WriteTimeout
	if write <= pipeline {
		t.Fatalf("write timeout %v must exceed pipeline budget %v", write, pipeline)
	}
	if d := server.ocr.deadline; d < pipeline || d >= write {
		t.Fatalf("handler deadline %v must lie in [%v, %v)", d, pipeline, write)
	}
}
