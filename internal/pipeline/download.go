package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencaselaw/harvester/internal/metrics"
)

// downloadPhase fetches document bodies for every record lacking one,
// optionally filtered to one source code and capped at the batch size.
// Retryable failures are queued and attempted exactly once more at a slowed
// request rate. The dataset is checkpointed every CheckpointEvery
// successful downloads and once more at phase end, so a crash loses at most
// one checkpoint interval of work.
func (o *Orchestrator) downloadPhase(ctx context.Context, cfg Config, records []Record) error {
	targets := o.downloadTargets(ctx, cfg, records)
	o.event(PhaseDownloading, SeverityInfo, "download_targets",
		fmt.Sprintf("%d records need a body", len(targets)), nil)

	var retryQueue []int
	downloaded := 0
	sinceCheckpoint := 0

	for n, idx := range targets {
		if o.stopRequested(PhaseDownloading) {
			return errStopped
		}
		o.setProgress(fmt.Sprintf("downloading %d of %d", n+1, len(targets)),
			downloadPercent(n, len(targets)))

		err := o.downloadOne(ctx, cfg.RequestDelay, &records[idx])
		if err != nil {
			cat := CategoryOf(err)
			if Retryable(cat) {
				retryQueue = append(retryQueue, idx)
				o.board.SetPendingRetries(pendingIDs(records, retryQueue))
				o.event(PhaseDownloading, SeverityWarn, "retry_queued",
					fmt.Sprintf("%s queued for retry (%s)", records[idx].LocalID, cat),
					map[string]string{"local_id": records[idx].LocalID, "category": string(cat)})
			} else {
				o.board.AddStats(RunStats{Failed: 1})
				metrics.ObserveDownload("failed")
				o.event(PhaseDownloading, SeverityError, string(cat),
					fmt.Sprintf("download failed for %s: %v", records[idx].LocalID, err),
					map[string]string{"local_id": records[idx].LocalID})
			}
			continue
		}

		downloaded++
		sinceCheckpoint++
		o.board.AddStats(RunStats{Downloaded: 1})
		metrics.ObserveDownload("success")
		if sinceCheckpoint >= cfg.CheckpointEvery {
			if err := o.records.SaveAll(ctx, records); err != nil {
				return fmt.Errorf("checkpoint dataset: %w", err)
			}
			sinceCheckpoint = 0
			o.event(PhaseDownloading, SeverityDebug, "checkpoint",
				fmt.Sprintf("checkpointed after %d downloads", downloaded), nil)
		}
	}

	if err := o.retryPass(ctx, cfg, records, retryQueue); err != nil {
		return err
	}

	if err := o.records.SaveAll(ctx, records); err != nil {
		return fmt.Errorf("save dataset after download: %w", err)
	}
	o.event(PhaseDownloading, SeveritySuccess, "download_done",
		fmt.Sprintf("downloaded %d bodies", downloaded+countDownloadedRetries(records, retryQueue)), nil)
	return nil
}

// retryPass attempts each queued record exactly once more with the
// inter-request delay increased.
func (o *Orchestrator) retryPass(ctx context.Context, cfg Config, records []Record, retryQueue []int) error {
	if len(retryQueue) == 0 {
		return nil
	}
	delay := cfg.retryDelay()
	o.event(PhaseDownloading, SeverityInfo, "retry_pass",
		fmt.Sprintf("retrying %d downloads at %s delay", len(retryQueue), delay), nil)

	for _, idx := range retryQueue {
		if o.stopRequested(PhaseDownloading) {
			return errStopped
		}
		o.board.AddStats(RunStats{Retried: 1})
		metrics.ObserveDownload("retried")

		if err := o.downloadOne(ctx, delay, &records[idx]); err != nil {
			o.board.AddStats(RunStats{Failed: 1})
			metrics.ObserveDownload("failed")
			o.event(PhaseDownloading, SeverityError, string(CategoryOf(err)),
				fmt.Sprintf("retry failed for %s: %v", records[idx].LocalID, err),
				map[string]string{"local_id": records[idx].LocalID})
			continue
		}
		o.board.AddStats(RunStats{Downloaded: 1})
		metrics.ObserveDownload("success")
	}
	o.board.SetPendingRetries(nil)
	return nil
}

// downloadOne fetches and persists one body, updating the record's local
// path in place. An empty body with no error is classified as a terminal
// empty-result failure.
func (o *Orchestrator) downloadOne(ctx context.Context, delay time.Duration, rec *Record) error {
	o.throttle(ctx, delay)
	text, err := o.documents.FetchDocument(ctx, *rec)
	if err != nil {
		return err
	}
	if text == "" {
		return NewFetchError(FailureEmptyResult, errors.New("empty document body"))
	}
	path, err := o.bodies.SaveBody(ctx, *rec, text)
	if err != nil {
		return fmt.Errorf("save body for %s: %w", rec.LocalID, err)
	}
	rec.LocalPath = path
	return nil
}

// downloadTargets selects the indexes of records lacking a verified-present
// body, in dataset order, honoring the source filter and batch cap.
func (o *Orchestrator) downloadTargets(ctx context.Context, cfg Config, records []Record) []int {
	var targets []int
	for i, rec := range records {
		if cfg.DownloadSourceFilter != "" && rec.SourceCode != cfg.DownloadSourceFilter {
			continue
		}
		if rec.LocalPath != "" && o.bodies.Exists(ctx, rec.LocalPath) {
			continue
		}
		targets = append(targets, i)
		if cfg.DownloadBatchSize > 0 && len(targets) >= cfg.DownloadBatchSize {
			break
		}
	}
	return targets
}

func pendingIDs(records []Record, queue []int) []string {
	out := make([]string, 0, len(queue))
	for _, idx := range queue {
		out = append(out, records[idx].LocalID)
	}
	return out
}

func countDownloadedRetries(records []Record, queue []int) int {
	n := 0
	for _, idx := range queue {
		if records[idx].LocalPath != "" {
			n++
		}
	}
	return n
}

// downloadPercent spreads download progress across the 55-95 band.
func downloadPercent(done, total int) int {
	if total <= 0 {
		return 95
	}
	return 55 + (40*done)/total
}
