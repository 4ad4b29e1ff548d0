package migration

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	apperrors "relgraph/backend/pkg/errors"
)

// Kind distinguishes vertex passes from edge passes in a report.
type Kind string

const (
	KindEntity       Kind = "entity"
	KindRelationship Kind = "relationship"
)

// Skip records one source row that was not materialized.
type Skip struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DefinitionReport holds the counts of one definition's pass.
type DefinitionReport struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Skips   []Skip `json:"skips,omitempty"`
}

func (r *DefinitionReport) skip(key string, err error) {
	r.Skipped++
	r.Skips = append(r.Skips, Skip{
		Key:     key,
		Code:    apperrors.CodeOf(err),
		Message: err.Error(),
	})
}

// IndexOutcome is the result of ensuring one label's index.
type IndexOutcome string

const (
	IndexCreated        IndexOutcome = "created"
	IndexExisting       IndexOutcome = "existing"
	IndexMissingStorage IndexOutcome = "missing_storage"
	IndexSkipped        IndexOutcome = "skipped"
)

// IndexReport is the outcome for one label. Code and Message are set when
// the store refused the index.
type IndexReport struct {
	Label   string       `json:"label"`
	Name    string       `json:"name"`
	Outcome IndexOutcome `json:"outcome"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Report summarizes a run. A failed run still returns the passes that
// completed before the failure.
type Report struct {
	RunID       string             `json:"run_id"`
	Graph       string             `json:"graph"`
	State       State              `json:"state"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Definitions []DefinitionReport `json:"definitions"`
	Indexes     []IndexReport      `json:"indexes"`
}

// Totals sums created and skipped rows over all definitions.
func (r *Report) Totals() (created, skipped int) {
	for _, d := range r.Definitions {
		created += d.Created
		skipped += d.Skipped
	}
	return created, skipped
}

// Definition returns the report for the named definition.
func (r *Report) Definition(name string) (DefinitionReport, bool) {
	for _, d := range r.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return DefinitionReport{}, false
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the per-definition counts as a table followed by the
// index outcomes and every skipped row.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "run %s on graph %s: %s in %s\n\n",
		r.RunID, r.Graph, r.State, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDEFINITION\tROWS\tCREATED\tSKIPPED")
	for _, d := range r.Definitions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", d.Kind, d.Name, d.Rows, d.Created, d.Skipped)
	}
	created, skipped := r.Totals()
	fmt.Fprintf(tw, "\tTOTAL\t\t%d\t%d\n", created, skipped)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Indexes) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LABEL\tINDEX\tOUTCOME")
		for _, ix := range r.Indexes {
			outcome := string(ix.Outcome)
			if ix.Code != "" {
				outcome += " (" + ix.Code + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", ix.Label, ix.Name, outcome)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if skipped > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "skipped rows:")
		for _, d := range r.Definitions {
			for _, s := range d.Skips {
				fmt.Fprintf(w, "  %s key=%s code=%s: %s\n", d.Name, s.Key, s.Code, s.Message)
			}
		}
	}
	return nil
}
