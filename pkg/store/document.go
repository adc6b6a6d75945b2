package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/batch"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
)

// unresolvedData marks a slot that never produced a payload.
var unresolvedData = json.RawMessage("-1")

// Record is one request slot with the row it was rendered from.
type Record struct {
	Index    int               `json:"index"`
	Input    map[string]string `json:"input,omitempty"`
	Data     json.RawMessage   `json:"data"`
	Resolved bool              `json:"resolved"`
	Attempts int               `json:"attempts"`
	Error    string            `json:"error,omitempty"`
	Time     time.Time         `json:"time"`
}

// Document is the raw output of one run.
type Document struct {
	RunID         string    `json:"run_id"`
	Vendor        string    `json:"vendor"`
	StartedAt     time.Time `json:"started_at"`
	Passes        int       `json:"passes"`
	Reason        string    `json:"reason"`
	Resolved      int       `json:"resolved"`
	Unresolved    int       `json:"unresolved"`
	ScraperIssues bool      `json:"scraper_issues"`
	Records       []Record  `json:"records"`
}

// BuildDocument wraps report's slots with their input rows. rows may be nil;
// otherwise it must be index-aligned with report.Results.
func BuildDocument(vendor string, rows []request.Row, report *batch.Report) (*Document, error) {
	if report == nil {
		return nil, fmt.Errorf("build document: nil report")
	}
	if rows != nil && len(rows) != len(report.Results) {
		return nil, fmt.Errorf("build document: %d rows for %d results", len(rows), len(report.Results))
	}

	finished := report.StartedAt.Add(report.Duration).UTC()
	doc := &Document{
		RunID:         report.RunID,
		Vendor:        vendor,
		StartedAt:     report.StartedAt.UTC(),
		Passes:        report.Passes,
		Reason:        string(report.Reason),
		Resolved:      report.Resolved,
		Unresolved:    report.Unresolved,
		ScraperIssues: report.Unresolved > 0,
		Records:       make([]Record, len(report.Results)),
	}

	for i, slot := range report.Results {
		rec := Record{
			Index:    slot.Index,
			Data:     unresolvedData,
			Resolved: slot.Resolved(),
			Attempts: slot.Attempts,
			Time:     finished,
		}
		if rows != nil {
			rec.Input = rows[i]
		}
		if slot.Resolved() {
			rec.Data = slot.Payload
		} else if slot.LastErr != nil {
			rec.Error = slot.LastErr.Error()
		}
		doc.Records[i] = rec
	}
	return doc, nil
}
