// Package syncer keeps the feature store in step with a remote source by
// content hash.
//
// A Sync fetches the source, compares the SHA-256 of the downloaded bytes with
// the hash saved by the previous sync and, only when they differ (or Force is
// given), deletes every stored feature and inserts the new set in a single
// transaction:
//
//	idle -> fetched -> up_to_date
//	                -> needs_update -> synced
//
// The sync state is saved after the replace commits, so a failed replace is
// retried in full by the next Sync.
package syncer
