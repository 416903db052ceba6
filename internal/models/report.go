package models

import (
	"fmt"
	"strings"
	"time"
)

type SyncStatus string

const (
	StatusUpdated  SyncStatus = "updated"
	StatusUpToDate SyncStatus = "up_to_date"
	StatusNoData   SyncStatus = "no_data"
	StatusFailed   SyncStatus = "failed"
)

type InstrumentResult struct {
	Symbol      string        `json:"symbol"`
	Name        string        `json:"name"`
	Status      SyncStatus    `json:"status"`
	Provider    Provider      `json:"provider,omitempty"`
	NewRows     int           `json:"newRows"`
	RowFailures int           `json:"rowFailures"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

type SyncReport struct {
	RunID       string             `json:"runId"`
	StartedAt   time.Time          `json:"startedAt"`
	Attempted   int                `json:"attempted"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	NoData      int                `json:"noData"`
	UpToDate    int                `json:"upToDate"`
	NewRows     int                `json:"newRows"`
	RowFailures int                `json:"rowFailures"`
	Duration    time.Duration      `json:"duration"`
	Aborted     bool               `json:"aborted"`
	AbortReason string             `json:"abortReason,omitempty"`
	Results     []InstrumentResult `json:"results"`
}

func (r *SyncReport) Add(res InstrumentResult) {
	r.Attempted++
	r.RowFailures += res.RowFailures
	switch res.Status {
	case StatusUpdated:
		r.Succeeded++
		r.NewRows += res.NewRows
	case StatusUpToDate:
		r.Succeeded++
		r.UpToDate++
	case StatusNoData:
		r.Failed++
		r.NoData++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Summary renders the human-readable run summary.
func (r *SyncReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Attempted: %d\n", r.Attempted)
	fmt.Fprintf(&b, "  Succeeded: %d (%d already up to date)\n", r.Succeeded, r.UpToDate)
	fmt.Fprintf(&b, "  Failed:    %d (%d with no provider data)\n", r.Failed, r.NoData)
	fmt.Fprintf(&b, "  New rows:  %d\n", r.NewRows)
	if r.RowFailures > 0 {
		fmt.Fprintf(&b, "  Skipped rows: %d\n", r.RowFailures)
	}
	if r.Aborted {
		fmt.Fprintf(&b, "  ABORTED: %s\n", r.AbortReason)
	}
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusNoData {
			fmt.Fprintf(&b, "  - %s: %s %s\n", res.Symbol, res.Status, res.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
