package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsSuccessAndFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if err := metrics.Track("ledger:integrity").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantErr := errors.New("drift")
	if err := metrics.Track("ledger:integrity").End(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("tracker must return the error untouched, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.failures.WithLabelValues("ledger:integrity")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("ledger:integrity", "success")); got != 1 {
		t.Fatalf("expected 1 success run, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("ledger:integrity", "failure")); got != 1 {
		t.Fatalf("expected 1 failure run, got %v", got)
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var metrics *Metrics
	wantErr := errors.New("boom")
	if err := metrics.Track("anything").End(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("nil metrics tracker must pass the error through")
	}
}

func TestMetricNamesCarryPrefix(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	_ = metrics.Track("ledger:series-warmup").End(nil)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), "balanza_") {
			t.Fatalf("unexpected metric name %s", fam.GetName())
		}
	}
}
