// Package ipc provides the local transport used between a client process
// and the Hash Server daemon (spec §4.4, §6): a Unix domain socket on POSIX
// and a named pipe on Windows, each identified by a path on disk. It is
// adapted directly from the teacher codebase's pkg/ipc package, which
// provides the same dial/listen abstraction for its own background daemon.
package ipc

import (
	"time"
)

// RecommendedDialTimeout is the recommended timeout to use when establishing
// IPC connections to the hash server.
const RecommendedDialTimeout = 1 * time.Second
