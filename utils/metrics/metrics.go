package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// PipelineMetrics tracks stage outcomes and broadcast results. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	StageOutcomes *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec
	Opportunities prometheus.Counter
	Fallbacks     prometheus.Counter
	Broadcasts    *prometheus.CounterVec
	Nonce         prometheus.Gauge
	SuccessRate   prometheus.Gauge
}

// NewPipelineMetrics creates the collectors and registers them on reg. A nil
// reg leaves them unregistered.
func NewPipelineMetrics(namespace string, reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		StageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage results by stage and outcome",
		}, []string{"stage", "result"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_detected_total",
			Help:      "Total number of opportunities that passed the profit filter",
		}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_fallbacks_total",
			Help:      "Total number of scores produced by the fallback rule",
		}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast outcomes by mode, result and error kind",
		}, []string{"mode", "result", "kind"}),
		Nonce: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_nonce",
			Help:      "Last nonce assigned to a plan",
		}),
		SuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_success_ratio",
			Help:      "Share of broadcasts that were confirmed",
		}),
	}
}

// ObserveStage records one stage result and how long it took.
func (m *PipelineMetrics) ObserveStage(stage string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := resultFailure
	if success {
		result = resultSuccess
	}
	m.StageOutcomes.WithLabelValues(stage, result).Inc()
	m.StageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) OpportunitiesDetected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Opportunities.Add(float64(n))
}

func (m *PipelineMetrics) FallbackUsed() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

func (m *PipelineMetrics) SetNonce(nonce uint64) {
	if m == nil {
		return
	}
	m.Nonce.Set(float64(nonce))
}

// RecordBroadcast counts the result and refreshes the success ratio.
func (m *PipelineMetrics) RecordBroadcast(mode string, result types.BroadcastResult) {
	if m == nil {
		return
	}
	outcome := resultFailure
	if result.Success {
		outcome = resultSuccess
	}
	m.Broadcasts.WithLabelValues(mode, outcome, result.Kind.String()).Inc()

	succeeded := sumCounters(m.Broadcasts, resultSuccess)
	total := succeeded + sumCounters(m.Broadcasts, resultFailure)
	if total > 0 {
		m.SuccessRate.Set(succeeded / total)
	}
}

// sumCounters adds up every child of vec whose result label matches.
func sumCounters(vec *prometheus.CounterVec, result string) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	var sum float64
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err != nil || pb.Counter == nil {
			continue
		}
		for _, label := range pb.GetLabel() {
			if label.GetName() == "result" && label.GetValue() == result {
				sum += pb.Counter.GetValue()
			}
		}
	}
	return sum
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return router
}

// NewServer returns an HTTP server exposing Handler on addr.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
