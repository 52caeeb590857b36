package progress

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Snapshot is the externally visible state of the current run.
type Snapshot struct {
	RunID       string         `json:"run_id,omitempty"`
	Stage       Stage          `json:"stage,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	PagesTotal  int            `json:"pages_total"`
	PagesDone   int            `json:"pages_done"`
	Records     int            `json:"records"`
	TitlesTotal int            `json:"titles_total"`
	TitlesDone  int            `json:"titles_done"`
	Reasons     map[string]int `json:"plot_reasons"`
	RowsWritten int            `json:"rows_written"`
	OutputURI   string         `json:"output_uri,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Tracker is a Sink that folds events into a Snapshot. A RUN_START for a new
// run ID resets it.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Reasons: map[string]int{}}}
}

// Consume implements Sink.
func (t *Tracker) Consume(_ context.Context, batch []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt Event) {
	if evt.Stage == StageRunStart && evt.RunID != t.snap.RunID {
		ts := evt.TS
		t.snap = Snapshot{RunID: evt.RunID, StartedAt: &ts, Reasons: map[string]int{}}
	}
	if evt.RunID != t.snap.RunID {
		return
	}
	// Terminal stages stick even if stragglers arrive in a later batch.
	if t.snap.Stage != StageRunDone && t.snap.Stage != StageRunError {
		t.snap.Stage = evt.Stage
	}
	switch evt.Stage {
	case StageRunStart:
		t.snap.PagesTotal = evt.Total
	case StagePageDone:
		t.snap.PagesDone++
		t.snap.Records += evt.Records
	case StageLookupStart:
		t.snap.TitlesTotal = evt.Total
	case StagePlotDone:
		t.snap.TitlesDone++
		t.snap.Reasons[string(evt.Reason)]++
	case StageWriteDone:
		t.snap.RowsWritten = evt.Records
		t.snap.OutputURI = evt.Note
	case StageRunDone:
		ts := evt.TS
		t.snap.FinishedAt = &ts
	case StageRunError:
		ts := evt.TS
		t.snap.FinishedAt = &ts
		t.snap.Error = evt.Note
	}
}

// Close implements Sink.
func (t *Tracker) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.snap
	out.Reasons = maps.Clone(t.snap.Reasons)
	if out.Reasons == nil {
		out.Reasons = map[string]int{}
	}
	return out
}
