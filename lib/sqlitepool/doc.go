// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// Package sqlitepool provides the client's SQLite connection pool.
//
// It wraps zombiezen.com/go/sqlite with the defaults the message
// history needs: WAL journal mode so transcript reads never block the
// append path, NORMAL synchronous for process-crash durability without
// fsync-per-commit overhead, and a busy timeout so concurrent access
// waits instead of failing with SQLITE_BUSY.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are NOT safe for concurrent use — each goroutine
// holds its own for the duration of its work.
//
// The package is intentionally thin: it applies the pragmas and
// exposes the underlying zombiezen types directly. Consumers write
// SQL and use sqlitex.Execute; there is no query builder.
package sqlitepool
