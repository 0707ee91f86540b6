package match

import "github.com/prometheus/client_golang/prometheus"

// Recorder receives stage and run reports as the pipeline produces them.
type Recorder interface {
	ObserveStage(StageReport)
	ObserveRun(*Result)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStage(StageReport) {}
func (NoopRecorder) ObserveRun(*Result)       {}

const metricsPrefix = "trialmap_"

var stageBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300}

// PrometheusRecorder exports pipeline counters.
type PrometheusRecorder struct {
	records      *prometheus.CounterVec
	mappings     *prometheus.CounterVec
	trials       *prometheus.CounterVec
	invalid      *prometheus.CounterVec
	ambiguities  *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	coverage     prometheus.Gauge
	unmapped     prometheus.Gauge
	runs         prometheus.Counter
}

// NewPrometheusRecorder registers the pipeline metrics with reg, or with the
// default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "stage_records_total",
			Help: "Intervention records entering each stage.",
		}, []string{"stage"}),
		mappings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "stage_mappings_total",
			Help: "Mappings produced by each stage.",
		}, []string{"stage"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "stage_trials_mapped_total",
			Help: "Trials resolved by each stage.",
		}, []string{"stage"}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "stage_invalid_patterns_total",
			Help: "Reference patterns skipped because they could not be compiled.",
		}, []string{"stage"}),
		ambiguities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "stage_ambiguities_total",
			Help: "Texts with several equally close canonical names.",
		}, []string{"stage"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "stage_duration_seconds",
			Help:    "Wall time of each stage.",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "coverage_ratio",
			Help: "Fraction of drug trials mapped by the last run.",
		}),
		unmapped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "unmapped_records",
			Help: "Drug records left unmapped by the last run.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "runs_total",
			Help: "Completed pipeline runs.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.records, r.mappings, r.trials, r.invalid, r.ambiguities,
		r.stageSeconds, r.coverage, r.unmapped, r.runs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveStage(rep StageReport) {
	stage := string(rep.Stage)
	r.records.WithLabelValues(stage).Add(float64(rep.RecordsIn))
	r.mappings.WithLabelValues(stage).Add(float64(rep.Mappings))
	r.trials.WithLabelValues(stage).Add(float64(rep.TrialsMapped))
	r.invalid.WithLabelValues(stage).Add(float64(rep.InvalidPatterns))
	r.ambiguities.WithLabelValues(stage).Add(float64(len(rep.Ambiguities)))
	r.stageSeconds.WithLabelValues(stage).Observe(rep.Duration.Seconds())
}

func (r *PrometheusRecorder) ObserveRun(res *Result) {
	r.runs.Inc()
	r.coverage.Set(res.Coverage)
	r.unmapped.Set(float64(len(res.Unmapped)))
}
