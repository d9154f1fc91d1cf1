package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opencaselaw/harvester/internal/metrics"
)

// crawlPhase enumerates every configured source/year pair, dispatching each
// through the strategy rotation and merging findings into the working set.
// The full set is persisted once at phase end, and only if anything was
// added. Returns errStopped on cooperative stop; any other error is fatal.
func (o *Orchestrator) crawlPhase(ctx context.Context, cfg Config, rotator *StrategyRotator, working *recordSet) error {
	years := cfg.years()
	total := len(cfg.Sources) * len(years)
	addedTotal := 0

	unit := 0
	for _, source := range cfg.Sources {
		for _, year := range years {
			if o.stopRequested(PhaseCrawling) {
				return errStopped
			}
			unit++
			o.setProgress(fmt.Sprintf("crawling %s/%d (%d of %d)", source, year, unit, total),
				crawlPercent(unit, total))

			found := o.fetchListingWithRotation(ctx, cfg, rotator, source, year)
			added := 0
			for _, rec := range found {
				if rec.Year == 0 {
					rec.Year = year
				}
				if rec.SourceCode == "" {
					rec.SourceCode = source
				}
				if working.add(rec) {
					added++
				}
			}
			addedTotal += added

			o.board.AddStats(RunStats{Found: len(found), Added: added})
			metrics.ObserveRecordsFound(source, len(found), added)
			o.event(PhaseCrawling, SeverityInfo, "crawl_summary",
				fmt.Sprintf("%s/%d: found %d, added %d", source, year, len(found), added),
				map[string]string{"source": source, "year": strconv.Itoa(year)})
		}
	}

	if addedTotal > 0 {
		if err := o.records.SaveAll(ctx, working.records()); err != nil {
			return fmt.Errorf("save dataset after crawl: %w", err)
		}
		o.event(PhaseCrawling, SeveritySuccess, "dataset_saved",
			fmt.Sprintf("persisted %d records", working.len()), nil)
	}
	return nil
}

// fetchListingWithRotation tries up to one full rotation of strategies for
// one source/year. A nil error (including an empty listing) is success and
// resets the failure counter; exhaustion skips the pair for this run.
func (o *Orchestrator) fetchListingWithRotation(ctx context.Context, cfg Config, rotator *StrategyRotator, source string, year int) []Record {
	for attempt := 0; attempt < rotator.Count(); attempt++ {
		strategy := rotator.Current(source)
		o.board.Update(StatusPatch{ActiveStrategy: &strategy})

		o.throttle(ctx, cfg.RequestDelay)
		found, err := o.listings.FetchListing(ctx, source, year, strategy)
		if err == nil {
			rotator.RecordSuccess(source)
			return found
		}

		cat := CategoryOf(err)
		o.event(PhaseCrawling, SeverityError, string(cat), err.Error(), map[string]string{
			"source":   source,
			"year":     strconv.Itoa(year),
			"strategy": strategy,
		})
		if rotated, from, to := rotator.RecordFailure(source); rotated {
			metrics.ObserveStrategySwitch(source)
			o.event(PhaseCrawling, SeverityWarn, "strategy_switch",
				fmt.Sprintf("source %s: strategy %s -> %s", source, from, to),
				map[string]string{"source": source, "from": from, "to": to})
		}
	}

	o.event(PhaseCrawling, SeverityWarn, "strategy_exhausted",
		fmt.Sprintf("all strategies failed for %s/%d, skipping", source, year),
		map[string]string{"source": source, "year": strconv.Itoa(year)})
	return nil
}

// crawlPercent spreads crawl progress across the 5-40 band.
func crawlPercent(unit, total int) int {
	if total <= 0 {
		return 40
	}
	return 5 + (35*unit)/total
}
