// Package scheduler runs a fleet of single-goroutine event loops, each
// multiplexing a set of Tasks over one epoll instance via
// golang.org/x/sys/unix. Task is an abstraction any component (a
// listening socket, a comm task, a chunked-stream producer) can
// implement to get multiplexed over one of the fleet's loops.
package scheduler

// Task is anything a Loop can multiplex. Implementations must only mutate
// their own I/O state from callbacks invoked by their owning Loop's
// goroutine -- loop affinity.
type Task interface {
	FD() int
	OnReadable()
	OnWritable()
	OnTimeout()

	// Close forcibly tears the task down, releasing its fd. Only the
	// owning Loop calls this, from its own goroutine, while stopping; a
	// Task must not itself try to remove itself from the Loop's task map
	// from inside Close (the Loop already owns that).
	Close()
}

// TaskID identifies a Task uniquely within a Scheduler for the lifetime of
// the process.
type TaskID uint64
