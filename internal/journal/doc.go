// Package journal keeps a local SQLite ledger of remote jobs.
//
// Every job the controller submits is recorded together with its last
// known state and the time it was deleted. Rows without a deletion time
// are orphans: jobs that may still occupy space on the remote service
// because the process died before cleanup ran.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, SQLite allows one writer
//
// Listings are ordered by submission sequence, then id.
package journal
