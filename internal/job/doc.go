// Package job drives one remote solve job through its lifecycle.
//
// A job is submitted once, polled until it reaches a terminal state, its
// artifacts are read from the last status document, and it is deleted on
// the remote side exactly once on every exit path:
//
//	Created -> Running -> Completed | Failed | Canceled | Deleted
//
// Controller.Run wraps the whole sequence and guarantees the delete with a
// defer, so errors and panics raised while consuming the result still
// release the remote job.
package job
