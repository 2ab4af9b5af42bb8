// Package dblock serializes test binaries that share one Postgres database.
// go test runs packages in parallel processes, so the lock is a TCP port
// rather than a mutex.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:45433"

// Acquire blocks until this process holds the database lock and returns its
// release func. Without DATABASE_URL the Postgres tests skip, so there is
// nothing to serialize and Acquire returns immediately.
func Acquire() (release func()) {
	if os.Getenv("DATABASE_URL") == "" {
		return func() {}
	}
	addr := os.Getenv("EXCHANGE_TEST_LOCK_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(100 * time.Millisecond)
	}
}
