// Package progress tracks the state of the current ingestion run.
//
// A Monitor owns a single RunState guarded by one mutex. Every mutating call
// writes the full snapshot synchronously to each configured Sink, so external
// readers see the latest state without calling into the running process:
//
//	mon := progress.NewMonitor(logger, progress.NewFileSink("status/current_status.json"))
//	mon.Prepare()           // Not Started: fetching
//	mon.Start(250)          // In Progress
//	mon.Advance(100, 0)     // one chunk done
//	mon.Complete()          // Completed
//
// ReadStatus reads the file sink's snapshot from another process. A missing
// file reports the No Run state rather than an error. RedisSink mirrors the same
// JSON snapshot under a key for readers on other hosts.
package progress
