// Package pipeline implements the crawl-clean-download orchestrator: the
// phase state machine, the shared status board polled by observers, the
// append-only event log, strategy rotation, and retry classification.
package pipeline
