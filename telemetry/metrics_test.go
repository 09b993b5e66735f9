package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init()

	if CommandsExecuted == nil || CommandsSuppressed == nil || ModerationActions == nil {
		t.Fatal("command metrics not initialized")
	}
	if MessagesSent == nil || TimedAnnouncements == nil || DispatchDuration == nil {
		t.Fatal("chat metrics not initialized")
	}
	if ConditionCacheSize == nil || HandlersLoaded == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestIncVec(t *testing.T) {
	Init()

	before := testutil.ToFloat64(CommandsExecuted.WithLabelValues("dice"))
	IncVec(CommandsExecuted, "dice")
	IncVec(CommandsExecuted, "dice")
	if got := testutil.ToFloat64(CommandsExecuted.WithLabelValues("dice")); got != before+2 {
		t.Errorf("dice executions = %v, want %v", got, before+2)
	}

	// nil collectors are ignored
	IncVec(nil, "x")
	Inc(nil)
	SetGauge(nil, 3)
}

func TestSetGauge(t *testing.T) {
	Init()

	SetGauge(ConditionCacheSize, 7)
	if got := testutil.ToFloat64(ConditionCacheSize); got != 7 {
		t.Errorf("cache size gauge = %v, want 7", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("empty context should have no correlation id")
	}

	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("GetCorrelation = %q, want abc", got)
	}

	ctx = WithNewCorrelation(context.Background())
	if id := GetCorrelation(ctx); len(id) != 36 {
		t.Errorf("generated id %q is not a uuid", id)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
