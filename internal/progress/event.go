package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Run milestones, in the order a successful run emits them.
const (
	StageRunStart    Stage = "RUN_START"
	StagePageDone    Stage = "PAGE_DONE"
	StageLookupStart Stage = "LOOKUP_START"
	StagePlotDone    Stage = "PLOT_DONE"
	StageWriteDone   Stage = "WRITE_DONE"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
)

// Event captures one milestone of a run.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// Total is the number of pages (RUN_START) or unique titles (LOOKUP_START).
	Total int
	// Genre and Start identify the listing page of a PAGE_DONE event.
	Genre string
	Start int
	// Records counts parsed records (PAGE_DONE) or written rows (WRITE_DONE).
	Records int
	Title   string
	Reason  movie.PlotReason
	Dur     time.Duration
	// Note holds the output URI on WRITE_DONE and the error text on RUN_ERROR.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageLookupStart, StageWriteDone, StageRunDone:
	case StagePageDone:
		if e.Genre == "" {
			return errors.New("page done requires genre")
		}
	case StagePlotDone:
		if e.Reason == "" {
			return errors.New("plot done requires reason")
		}
	case StageRunError:
		if e.Note == "" {
			return errors.New("run error requires note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Total < 0 || e.Records < 0 {
		return errors.New("counts must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
