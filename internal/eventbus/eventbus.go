// Package eventbus is the broadcast seam between the Stream Processor and
// whatever observer surface a caller wires in (a WebSocket hub, a test
// collector, the CLI's printer). The core only ever publishes; it never
// depends on what subscribes.
package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Part mirrors the fields of a broadcastable event: the fixed alphabet
// plus the persisted part id, so observers can correlate a live event
// with the durable record the Stream Processor just created.
type Part struct {
	Type       string
	SessionID  string
	MessageID  string
	PartID     string
	ToolCallID string
	ToolName   string
	Text       string
	StepNumber int
	FinishReason string
	Error      string
}

// Bus fans a per-project event stream out to every active subscriber.
type Bus interface {
	Publish(projectID string, event Part)
	Subscribe(projectID string) (ch <-chan Part, cancel func())
}

// InMemory is a simple in-process fan-out bus. Each project id owns an
// independent set of subscriber channels; a slow subscriber never blocks
// publication — its events are dropped rather than backing up the
// Stream Processor, since the processor's own observer callback is best
// effort per the orchestration contract.
type InMemory struct {
	mu   sync.RWMutex
	subs map[string]map[chan Part]struct{}
}

// NewInMemory returns an empty bus.
func NewInMemory() *InMemory {
	return &InMemory{subs: map[string]map[chan Part]struct{}{}}
}

func (b *InMemory) Subscribe(projectID string) (<-chan Part, func()) {
	ch := make(chan Part, 64)
	b.mu.Lock()
	if b.subs[projectID] == nil {
		b.subs[projectID] = map[chan Part]struct{}{}
	}
	b.subs[projectID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[projectID], ch)
		close(ch)
	}
	return ch, cancel
}

func (b *InMemory) Publish(projectID string, event Part) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[projectID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Metrics are the turn/part/cost counters the Stream Processor updates as
// it processes events, independent of which Bus is wired for broadcast.
type Metrics struct {
	TurnsTotal    *prometheus.CounterVec
	PartsTotal    *prometheus.CounterVec
	TokensTotal   *prometheus.CounterVec
	CostTotal     *prometheus.CounterVec
	ToolCallsTotal *prometheus.CounterVec
}

// NewMetrics registers the Stream Processor's counters against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_turns_total",
			Help: "Completed turns by finish reason.",
		}, []string{"finish_reason"}),
		PartsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_message_parts_total",
			Help: "Message parts created by type.",
		}, []string{"type"}),
		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tokens_total",
			Help: "Tokens consumed by vendor, model, and direction.",
		}, []string{"vendor", "model", "direction"}),
		CostTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_cost_usd_total",
			Help: "Accumulated cost in USD by vendor and model.",
		}, []string{"vendor", "model"}),
		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_calls_total",
			Help: "Tool invocations by tool name and terminal status.",
		}, []string{"tool", "status"}),
	}
}
