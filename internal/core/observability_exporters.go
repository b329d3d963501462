package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"deckcore/internal/stepgen"
)

var expvarSeq atomic.Uint64

type opStats struct {
	totalMS float64
	ok      int64
	failed  int64
}

// ExpvarMetricsRecorder publishes service operation outcomes and simulation
// counters under a single expvar name.
type ExpvarMetricsRecorder struct {
	name string

	mu       sync.Mutex
	ops      map[string]*opStats
	steps    int64
	commands map[string]int64
	failures map[string]int64
}

// ExpvarMetricsSnapshot is the JSON document served by the expvar variable.
// Durations are totals in milliseconds per operation.
type ExpvarMetricsSnapshot struct {
	DurationsMS    map[string]float64          `json:"durations_ms_total"`
	Results        map[string]map[string]int64 `json:"results_total"`
	StepsSimulated int64                       `json:"steps_simulated_total"`
	Commands       map[string]int64            `json:"commands_total"`
	CreationErrors map[string]int64            `json:"creation_errors_total"`
	RecordedAt     time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated deckcore_service_metrics_<n> name when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("deckcore_service_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{
		name:     name,
		ops:      make(map[string]*opStats),
		commands: make(map[string]int64),
		failures: make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name is the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ExpvarMetricsSnapshot{
		DurationsMS:    make(map[string]float64, len(r.ops)),
		Results:        make(map[string]map[string]int64, len(r.ops)),
		StepsSimulated: r.steps,
		Commands:       maps.Clone(r.commands),
		CreationErrors: maps.Clone(r.failures),
		RecordedAt:     time.Now().UTC(),
	}
	for op, st := range r.ops {
		snap.DurationsMS[op] = st.totalMS
		counts := make(map[string]int64, 2)
		if st.ok > 0 {
			counts[string(AuditStatusSuccess)] = st.ok
		}
		if st.failed > 0 {
			counts[string(AuditStatusError)] = st.failed
		}
		snap.Results[op] = counts
	}
	return snap
}

// Observe implements MetricsRecorder. Unnamed operations are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &opStats{}
		r.ops[operation] = st
	}
	st.totalMS += float64(duration) / float64(time.Millisecond)
	if success {
		st.ok++
	} else {
		st.failed++
	}
}

// ObserveTimeline implements SimulationObserver. The failing step, if any,
// counts as simulated.
func (r *ExpvarMetricsRecorder) ObserveTimeline(_ context.Context, tl stepgen.Timeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps += int64(len(tl.Frames))
	for _, f := range tl.Frames {
		for _, cmd := range f.Commands {
			r.commands[cmd.CommandType()]++
		}
	}
	if tl.Error == nil {
		return
	}
	r.steps++
	for _, ce := range tl.Error.Errors {
		r.failures[string(ce.Type)]++
	}
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes finished spans as JSON lines and keeps them in memory.
type JSONTraceTracer struct {
	clock Clock

	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w; a nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{clock: systemClock{}}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the spans finished so far.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.clock.Now()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := s.tracer.clock.Now()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = string(AuditStatusError)
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}
