// Package storage persists the notification gate state and the operator audit log.
//
// Drivers:
//   - file: two plain text files readable by older motion event scripts,
//     plus audit.jsonl
//   - sqlite: a single database file (pure Go driver, WAL)
//   - memory: process-local, for tests
package storage
