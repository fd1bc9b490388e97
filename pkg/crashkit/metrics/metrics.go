// metrics.go exposes pipeline counters through Prometheus.

package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Payload kinds used as the "kind" label.
const (
	KindEvent   = "event"
	KindSession = "session"
)

// Flush pass results used as the "result" label.
const (
	FlushRan       = "ran"
	FlushCoalesced = "coalesced"
	FlushEmpty     = "empty"
)

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncDeliveries(kind, status string)
	IncStoredWritten(kind string)
	IncStoredEvicted(kind string)
	IncFlushPasses(kind, result string)
	IncExecutorRejections(task string)
	IncInternalReports()
	IncBusDropped()
}

// Prometheus is the Recorder backed by client_golang counters.
type Prometheus struct {
	deliveries      *prometheus.CounterVec
	storedWritten   *prometheus.CounterVec
	storedEvicted   *prometheus.CounterVec
	flushPasses     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	internalReports prometheus.Counter
	busDropped      prometheus.Counter
}

// NewPrometheus registers the crashkit series on reg. Series already present
// on reg, for example from an earlier client in the same process, are reused
// rather than registered twice.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	return &Prometheus{
		deliveries: registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crashkit_deliveries_total",
			Help: "Delivery attempts by payload kind and outcome",
		}, []string{"kind", "status"})),

		storedWritten: registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crashkit_stored_files_written_total",
			Help: "Payloads persisted to the on-disk queue",
		}, []string{"kind"})),

		storedEvicted: registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crashkit_stored_files_evicted_total",
			Help: "Stored payloads evicted to respect the capacity limit",
		}, []string{"kind"})),

		flushPasses: registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crashkit_flush_passes_total",
			Help: "Flush passes by payload kind and result",
		}, []string{"kind", "result"})),

		rejections: registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crashkit_executor_rejections_total",
			Help: "Background tasks rejected by the executor",
		}, []string{"task"})),

		internalReports: registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crashkit_internal_reports_total",
			Help: "Diagnostic self-reports generated",
		})),

		busDropped: registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crashkit_bus_dropped_total",
			Help: "State messages dropped because the bus buffer was full",
		})),
	}
}

// registerVec registers c on reg and returns whichever collector reg holds
// for the series. Registration failures other than a duplicate leave c
// unregistered but usable.
func registerVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func (p *Prometheus) IncDeliveries(kind, status string) {
	p.deliveries.WithLabelValues(kind, status).Inc()
}

func (p *Prometheus) IncStoredWritten(kind string) {
	p.storedWritten.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncStoredEvicted(kind string) {
	p.storedEvicted.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncFlushPasses(kind, result string) {
	p.flushPasses.WithLabelValues(kind, result).Inc()
}

func (p *Prometheus) IncExecutorRejections(task string) {
	p.rejections.WithLabelValues(task).Inc()
}

func (p *Prometheus) IncInternalReports() {
	p.internalReports.Inc()
}

func (p *Prometheus) IncBusDropped() {
	p.busDropped.Inc()
}

type noop struct{}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noop{} }

func (noop) IncDeliveries(string, string)  {}
func (noop) IncStoredWritten(string)       {}
func (noop) IncStoredEvicted(string)       {}
func (noop) IncFlushPasses(string, string) {}
func (noop) IncExecutorRejections(string)  {}
func (noop) IncInternalReports()           {}
func (noop) IncBusDropped()                {}
