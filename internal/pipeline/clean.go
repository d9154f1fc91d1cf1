package pipeline

import (
	"context"
	"fmt"
)

// cleanPhase loads the full persisted set, runs the toggleable year-fix and
// dedupe passes plus a diagnostic validation count, and persists the result
// exactly once regardless of whether anything changed. Returns the cleaned
// set for the download phase.
func (o *Orchestrator) cleanPhase(ctx context.Context, cfg Config) ([]Record, error) {
	records, err := o.records.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset for clean: %w", err)
	}
	for i := range records {
		records[i].EnsureLocalID()
	}

	if cfg.FixYears {
		fixed := 0
		for i := range records {
			if records[i].Year != 0 {
				continue
			}
			if y := RecoverYear(records[i]); y > 0 {
				records[i].Year = y
				fixed++
			}
		}
		o.board.AddStats(RunStats{YearsFixed: fixed})
		o.event(PhaseCleaning, SeverityInfo, "years_fixed",
			fmt.Sprintf("recovered %d missing years", fixed), nil)
	}

	if cfg.Deduplicate {
		var removed int
		records, removed = dedupeByURL(records)
		o.board.AddStats(RunStats{DuplicatesRemoved: removed})
		o.event(PhaseCleaning, SeverityInfo, "deduplicated",
			fmt.Sprintf("removed %d duplicate records", removed), nil)
	}

	invalid := 0
	for _, rec := range records {
		if !rec.Valid() {
			invalid++
		}
	}
	severity := SeverityInfo
	if invalid > 0 {
		severity = SeverityWarn
	}
	o.event(PhaseCleaning, severity, "validation",
		fmt.Sprintf("%d of %d records missing required fields", invalid, len(records)), nil)

	if err := o.records.SaveAll(ctx, records); err != nil {
		return nil, fmt.Errorf("save dataset after clean: %w", err)
	}
	return records, nil
}

// dedupeByURL keeps the first occurrence of each non-empty URL, preserving
// original order. Records without a URL are always kept.
func dedupeByURL(records []Record) ([]Record, int) {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	removed := 0
	for _, rec := range records {
		if rec.URL != "" {
			if _, dup := seen[rec.URL]; dup {
				removed++
				continue
			}
			seen[rec.URL] = struct{}{}
		}
		out = append(out, rec)
	}
	return out, removed
}
