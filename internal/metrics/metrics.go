package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"guardian-recovery/internal/model"
)

// Recorder owns a private registry so tests can create as many as they like.
type Recorder struct {
	registry       *prometheus.Registry
	operations     *prometheus.CounterVec
	revocations    *prometheus.CounterVec
	totalWeight    prometheus.Gauge
	approvalWeight prometheus.Gauge
	pending        prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_operations_total",
			Help: "Recovery and registry operations by outcome.",
		}, []string{"operation", "result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_approval_revocations_total",
			Help: "Token approval revocations by status.",
		}, []string{"status"}),
		totalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_guardian_total_weight",
			Help: "Sum of weights of active guardians.",
		}),
		approvalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_approval_weight",
			Help: "Approval weight accumulated by the current request.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_pending",
			Help: "1 while a recovery request is pending.",
		}),
	}

	r.registry.MustRegister(
		r.operations,
		r.revocations,
		r.totalWeight,
		r.approvalWeight,
		r.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveOperation counts one operation. The result label is "ok" or the
// error kind.
func (r *Recorder) ObserveOperation(operation string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = model.Kind(err)
		if result == "" {
			result = "InternalError"
		}
	}
	r.operations.WithLabelValues(operation, result).Inc()
}

func (r *Recorder) SetRecoveryState(totalWeight uint64, approvalWeight uint64, pending bool) {
	if r == nil {
		return
	}
	r.totalWeight.Set(float64(totalWeight))
	r.approvalWeight.Set(float64(approvalWeight))
	if pending {
		r.pending.Set(1)
	} else {
		r.pending.Set(0)
	}
}

func (r *Recorder) ObserveRevocation(status string) {
	if r == nil {
		return
	}
	r.revocations.WithLabelValues(status).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
