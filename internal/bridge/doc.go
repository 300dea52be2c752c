// Package bridge lets an in-memory model be solved by the remote job
// service.
//
// LPSolver handles LP/MIP models through the CPLEX engine and CPSolver
// handles constraint-programming models through CP Optimizer. Both follow
// the same pipeline: give every object a unique name, export the model and
// its attachments to temporary files, submit a job, wait for it, decode the
// solution file and re-key it to the model objects. Original names are
// restored, temporary files removed and the remote job deleted on every
// exit path.
//
// Solver features the service does not offer return an error wrapping
// ErrNotSupported.
package bridge
