package pipeline

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbpipeline/types"
)

// Report is the ordered record of one round. It is safe for concurrent
// appends; ObservedAt never decreases along the report.
type Report struct {
	mu      sync.Mutex
	results []types.StageResult
	last    time.Time
	now     func() time.Time
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{now: time.Now}
}

// Append stamps result and adds it to the report.
func (r *Report) Append(result types.StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	observed := r.now()
	if observed.Before(r.last) {
		observed = r.last
	}
	r.last = observed
	result.ObservedAt = observed
	r.results = append(r.results, result)
}

// Results returns a copy of the stage results in append order.
func (r *Report) Results() []types.StageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.StageResult, len(r.results))
	copy(out, r.results)
	return out
}

// Success is false when any stage failed.
func (r *Report) Success() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, result := range r.results {
		if !result.Success {
			return false
		}
	}
	return true
}

// Find returns the results recorded for stage.
func (r *Report) Find(stage string) []types.StageResult {
	var out []types.StageResult
	for _, result := range r.Results() {
		if result.Stage == stage {
			out = append(out, result)
		}
	}
	return out
}

func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success bool                `json:"success"`
		Stages  []types.StageResult `json:"stages"`
	}{
		Success: r.Success(),
		Stages:  r.Results(),
	})
}
