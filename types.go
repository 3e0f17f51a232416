package tangguh

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Operation is an asynchronous unit of work wrapped by the engines. The
// engines never inspect the returned value; they only observe success or
// failure. Operations must honor ctx cancellation promptly, though the
// engines tolerate and discard late results from stragglers.
type Operation func(ctx context.Context) (any, error)

// KeyFunc derives a coalescing key from the arguments of a call.
type KeyFunc func(args ...any) string

// DefaultKeyFunc hashes the formatted arguments with FNV-64a. It is
// deterministic across calls within a process, which is all coalescing needs.
func DefaultKeyFunc(args ...any) string {
	h := fnv.New64a()
	for _, arg := range args {
		fmt.Fprintf(h, "%v|", arg)
	}
	return fmt.Sprintf("%x", h.Sum64())
}
