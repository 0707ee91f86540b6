package match

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatal(err)
	}
	res := runPipeline(t, Config{Recorder: r}, testRecords())

	if got := testutil.ToFloat64(r.runs); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.mappings.WithLabelValues("exact")); got != 2 {
		t.Errorf("exact mappings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.trials.WithLabelValues("product")); got != 2 {
		t.Errorf("product trials = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.coverage); got != res.Coverage {
		t.Errorf("coverage = %v, want %v", got, res.Coverage)
	}
	if got := testutil.ToFloat64(r.unmapped); got != 1 {
		t.Errorf("unmapped = %v, want 1", got)
	}

	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Error("expected duplicate registration error")
	}
}
