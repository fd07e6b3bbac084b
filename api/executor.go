package api

// Executor dispatches one-shot tasks off the calling thread. It backs the
// accelerator-sequence pipeline: a submitted task runs to completion on a
// worker and invokes its own continuation: the caller never blocks on it.
type Executor interface {
	// Submit schedules task for execution. Returns an error if the
	// executor has been closed.
	Submit(task func()) error
	NumWorkers() int
	Close()
}
