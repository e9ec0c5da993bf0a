// Package stages implements the four pipeline stages of a plan-analysis
// run: evidence collection, assumption seeding, multi-strategy inference
// and conflict resolution. Stages communicate through the run's ledger;
// the pipeline input/output thread carries the document payload
// unchanged. Each stage isolates its internal failures so a broken
// sub-task degrades the run instead of killing it.
package stages
