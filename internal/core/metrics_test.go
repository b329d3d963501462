package core

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"deckcore/internal/stepgen"
	"deckcore/pkg/domain"
)

func TestPrometheusRecorderCountsSimulation(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc, _ := newTestService(WithMetricsRecorder(rec))
	p := testProtocol(transfer("p300"), transfer("ghost"))
	if _, err := svc.Simulate(context.Background(), p); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if got := testutil.ToFloat64(rec.steps); got != 2 {
		t.Fatalf("expected 2 steps, got %v", got)
	}
	if got := testutil.ToFloat64(rec.failedSteps); got != 1 {
		t.Fatalf("expected 1 failed step, got %v", got)
	}
	if got := testutil.ToFloat64(rec.creationErrors.WithLabelValues(string(domain.ErrPipetteDoesNotExist))); got != 1 {
		t.Fatalf("expected 1 pipette error, got %v", got)
	}
	if got := testutil.ToFloat64(rec.commands.WithLabelValues(domain.CommandPickUpTip)); got != 1 {
		t.Fatalf("expected 1 pickUpTip, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestPrometheusRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewPrometheusRecorder(nil); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}

func TestPrometheusRecorderEmptyTimeline(t *testing.T) {
	rec, err := NewPrometheusRecorder(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec.ObserveTimeline(context.Background(), stepgen.Timeline{})
	if got := testutil.ToFloat64(rec.steps); got != 0 {
		t.Fatalf("expected no steps, got %v", got)
	}
}
