package pipeline

import (
	"fmt"
	"time"
)

// Status is the outcome of one partition task
type Status string

const (
	// StatusConverted means an artifact was written and the raw file removed
	StatusConverted Status = "converted"
	// StatusSkipped means an artifact already existed
	StatusSkipped Status = "skipped"
	// StatusFailed means the partition could not be converted; its raw file
	// is untouched and no artifact exists for it
	StatusFailed Status = "failed"
	// StatusCanceled means the task was never dispatched
	StatusCanceled Status = "canceled"
)

// Task is one raw partition waiting to be converted
type Task struct {
	Partition string
	Path      string
	// Flights enables the HHMM timestamp pass; set for bzip2 yearly files
	Flights bool
}

// Result is the outcome of one Task
type Result struct {
	Partition   string
	Path        string
	Status      Status
	Err         error
	Rows        int
	BytesBefore int64
	BytesAfter  int64
	Duration    time.Duration
}

// Ratio returns BytesAfter/BytesBefore, or 0 when nothing was measured
func (r Result) Ratio() float64 {
	if r.BytesBefore == 0 {
		return 0
	}
	return float64(r.BytesAfter) / float64(r.BytesBefore)
}

// Report collects the results of one converter run in discovery order
type Report struct {
	RunID    string
	Workers  int
	Results  []Result
	Duration time.Duration
}

// Count returns how many results have status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the failed results
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// BytesReclaimed sums the in-memory savings of converted partitions
func (r *Report) BytesReclaimed() int64 {
	var n int64
	for _, res := range r.Results {
		if res.Status == StatusConverted {
			n += res.BytesBefore - res.BytesAfter
		}
	}
	return n
}

func (r *Report) String() string {
	return fmt.Sprintf("%d converted, %d skipped, %d failed, %d canceled in %s",
		r.Count(StatusConverted), r.Count(StatusSkipped), r.Count(StatusFailed),
		r.Count(StatusCanceled), r.Duration.Round(time.Millisecond))
}
