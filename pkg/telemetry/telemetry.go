// Package telemetry is the Telemetry Stream (spec §4.7): multiplexes
// node-state transitions, log lines, variable updates, progress
// messages, and rendezvous request/reply notifications out to any
// number of attached observers.
//
// Grounded on the teacher's pkg/observer (Event/Observer/Manager fan-out
// with async per-observer dispatch and panic recovery) and extended
// with an OpenTelemetry span per run/node plus Prometheus counters, both
// carried forward from the teacher's own go.mod.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"
)

// EventType enumerates the event shapes from spec §4.7.
type EventType string

const (
	EventNodeStart         EventType = "node:start"
	EventNodeEnd           EventType = "node:end"
	EventLog               EventType = "log"
	EventProgress          EventType = "progress"
	EventVariableUpdate    EventType = "variable:update"
	EventRunEnd            EventType = "run:end"
	EventRendezvousRequest EventType = "rendezvous:request"
	EventRendezvousReply   EventType = "rendezvous:reply"
)

// Event is the single wire shape fanned out to every observer. Fields
// not relevant to Type are left zero.
type Event struct {
	Type       EventType
	RunID      string
	WorkflowID string
	NodeID     string
	ModuleType string

	// node:start
	ConfigPreview map[string]interface{}
	// node:end
	Success    bool
	Message    string
	DurationMS int64
	Error      string
	LogLevel   string
	// log
	LogMessage string
	// progress
	ProgressMessage string
	// variable:update
	VariableName  string
	VariableValue interface{}
	// run:end
	RunStatus string
	// rendezvous
	Category  string
	RequestID string
	Payload   interface{}

	Timestamp time.Time
}

// Observer receives every Event fanned out by a Manager. Implementations
// must not block for long; the Manager dispatches to each observer on
// its own goroutine, matching the teacher's pkg/observer.Manager.Notify.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }

// Manager fans an Event out to every registered Observer. Per spec
// §4.7, ordering is only guaranteed within one observer, matching
// scheduler emission order; there is no cross-observer ordering
// guarantee.
type Manager struct {
	mu        sync.RWMutex
	observers []Observer

	tracer trace.Tracer
	spans  map[string]trace.Span // keyed by runID or runID+"/"+nodeID
	spanMu sync.Mutex

	nodesExecuted prometheus.Counter
	runsCompleted *prometheus.CounterVec
	rendezvousGauge prometheus.Gauge
	processGauge    prometheus.Gauge
}

// NewManager creates an empty Manager. registry may be nil to skip
// Prometheus registration (tests typically pass nil).
func NewManager(registry prometheus.Registerer) *Manager {
	m := &Manager{
		spans:  make(map[string]trace.Span),
		tracer: otel.Tracer("rpacore/scheduler"),
		nodesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpacore_nodes_executed_total",
			Help: "Total node executions across all runs.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpacore_runs_completed_total",
			Help: "Total runs completed, labeled by terminal status.",
		}, []string{"status"}),
		rendezvousGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpacore_rendezvous_pending",
			Help: "Number of rendezvous slots currently awaited.",
		}),
		processGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpacore_processes_active",
			Help: "Number of child processes currently tracked by the supervisor.",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.nodesExecuted, m.runsCompleted, m.rendezvousGauge, m.processGauge)
	}
	return m
}

// Register attaches an observer. Safe to call concurrently with Notify.
func (m *Manager) Register(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// HasObservers reports whether any observer is attached.
func (m *Manager) HasObservers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers) > 0
}

// Notify fans event out to every observer asynchronously, recovering
// from a panicking observer so one misbehaving observer cannot corrupt
// the run, then updates the span/metric side effects tied to the event.
func (m *Manager) Notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		o := o
		go func() {
			defer func() { recover() }()
			o.OnEvent(ctx, event)
		}()
	}

	m.recordTelemetrySideEffects(ctx, event)
}

func (m *Manager) recordTelemetrySideEffects(ctx context.Context, event Event) {
	switch event.Type {
	case EventNodeStart:
		m.startNodeSpan(ctx, event)
	case EventNodeEnd:
		m.nodesExecuted.Inc()
		m.endNodeSpan(event)
	case EventRunEnd:
		m.runsCompleted.WithLabelValues(event.RunStatus).Inc()
		m.endRunSpan(event)
	}
}

func (m *Manager) startNodeSpan(ctx context.Context, event Event) {
	_, span := m.tracer.Start(ctx, "node:"+event.ModuleType,
		trace.WithAttributes(
			attribute.String("rpacore.run_id", event.RunID),
			attribute.String("rpacore.node_id", event.NodeID),
			attribute.String("rpacore.module_type", event.ModuleType),
		),
	)
	m.spanMu.Lock()
	m.spans[event.RunID+"/"+event.NodeID] = span
	m.spanMu.Unlock()
}

func (m *Manager) endNodeSpan(event Event) {
	key := event.RunID + "/" + event.NodeID
	m.spanMu.Lock()
	span, ok := m.spans[key]
	delete(m.spans, key)
	m.spanMu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(attribute.Bool("rpacore.success", event.Success))
	if event.Error != "" {
		span.SetAttributes(attribute.String("rpacore.error", event.Error))
	}
	span.End()
}

// StartRun opens the root span for a run. The caller should hold on to
// the returned context and pass it through Notify for the run's
// duration so node spans nest under it.
func (m *Manager) StartRun(ctx context.Context, runID, workflowID string) context.Context {
	ctx, span := m.tracer.Start(ctx, "workflow:run",
		trace.WithAttributes(
			attribute.String("rpacore.run_id", runID),
			attribute.String("rpacore.workflow_id", workflowID),
		),
	)
	m.spanMu.Lock()
	m.spans[runID] = span
	m.spanMu.Unlock()
	return ctx
}

func (m *Manager) endRunSpan(event Event) {
	m.spanMu.Lock()
	span, ok := m.spans[event.RunID]
	delete(m.spans, event.RunID)
	m.spanMu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("rpacore.status", event.RunStatus))
	span.End()
}

// SetRendezvousPending and SetProcessesActive publish the Rendezvous
// Registry and Process Supervisor's live counts as gauges. The gauges
// change only when a caller invokes these setters; the registry and the
// supervisor do not update them on register/unregister.
func (m *Manager) SetRendezvousPending(n int) { m.rendezvousGauge.Set(float64(n)) }
func (m *Manager) SetProcessesActive(n int)   { m.processGauge.Set(float64(n)) }
