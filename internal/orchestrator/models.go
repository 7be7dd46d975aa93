package orchestrator

import (
	"fmt"
	"time"

	"nlcd-county/internal/animation"
)

// Years covered by the Annual NLCD collection. Stop is exclusive, so the last
// requestable stop year is LastYear+1.
const (
	FirstYear = 1985
	LastYear  = 2023
)

// MaxFrames bounds the number of years in one request. Every frame is held
// in memory until the animation is encoded.
const MaxFrames = 1000

// Request selects a county and a half-open year range [Start, Stop) sampled
// every Step years. It also matches the JSON body of POST /animations.
type Request struct {
	Start  int    `json:"start"`
	Stop   int    `json:"stop"`
	Step   int    `json:"step"`
	State  string `json:"state"`
	County string `json:"county"`
}

// Validate checks Start <= Stop, Step >= 1 and that the range holds at most
// MaxFrames years.
func (r Request) Validate() error {
	if r.Start > r.Stop {
		return fmt.Errorf("%w: start %d is after stop %d", ErrInvalidRange, r.Start, r.Stop)
	}
	if r.Step < 1 {
		return fmt.Errorf("%w: step %d is less than 1", ErrInvalidRange, r.Step)
	}
	if n := yearCount(r.Start, r.Stop, r.Step); n > MaxFrames {
		return fmt.Errorf("%w: %d years exceeds the limit of %d", ErrInvalidRange, n, MaxFrames)
	}
	return nil
}

// validateDataset additionally bounds the range to the years that exist.
func (r Request) validateDataset() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Start < FirstYear || r.Stop > LastYear+1 {
		return fmt.Errorf("%w: years must lie within %d-%d", ErrInvalidRange, FirstYear, LastYear)
	}
	return nil
}

// Years returns start, start+step, ... while below stop. It returns nil for
// an empty range or a non-positive step.
func Years(start, stop, step int) []int {
	n := yearCount(start, stop, step)
	if n == 0 {
		return nil
	}
	years := make([]int, 0, min(n, MaxFrames))
	for i := uint64(0); i < n; i++ {
		years = append(years, int(uint64(start)+i*uint64(step)))
	}
	return years
}

// yearCount is the length of Years(start, stop, step), computed in uint64 so
// spans wider than MaxInt do not overflow.
func yearCount(start, stop, step int) uint64 {
	if step < 1 || start >= stop {
		return 0
	}
	span := uint64(stop) - uint64(start)
	return (span-1)/uint64(step) + 1
}

// Stage names a phase of a run reported through Progress.
type Stage string

const (
	StageYear   Stage = "year"
	StageEncode Stage = "encode"
	StageDone   Stage = "done"
)

// Progress is one human-readable status update emitted during a run.
type Progress struct {
	Stage   Stage
	Year    int
	Index   int
	Total   int
	Message string
	Elapsed time.Duration
}

// ProgressFunc receives progress updates. It is called synchronously from
// the goroutine running the pipeline.
type ProgressFunc func(Progress)

// Result is the outcome of a run.
type Result struct {
	Output  *animation.Output
	Years   []int
	Elapsed time.Duration
	// Path, Format and Artifact are set by Render once the artifact is written.
	Path     string
	Format   string
	Artifact []byte
}
