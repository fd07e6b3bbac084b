package accel

import "github.com/kvaster/nvmetcp/api"

// asAPIExecutor adapts Executor's Sequence-based Submit to the generic
// api.Executor shape (a bare func() task), so qpair code that only needs
// "run this off-thread" does not have to import accel.Sequence directly.
type asAPIExecutor struct{ e *Executor }

// AsAPIExecutor wraps e to satisfy api.Executor.
func AsAPIExecutor(e *Executor) api.Executor { return asAPIExecutor{e: e} }

func (a asAPIExecutor) Submit(task func()) error {
	return a.e.Submit(NewSequence().AppendFunc(task))
}

func (a asAPIExecutor) NumWorkers() int { return a.e.NumWorkers() }

func (a asAPIExecutor) Close() { a.e.Close() }

var _ api.Executor = asAPIExecutor{}
