// Package model defines the boundary between the bridge and a modeling API.
//
// The bridge never builds models itself. It enumerates the objects of a
// model, renames them when needed, asks the model to export itself to files
// and maps decoded solution values back onto the same objects. Object
// identity is the identity of the value stored in the interface, which for
// the reference implementation is a pointer.
//
// LP and CP are small in-memory reference models implementing the
// interfaces. They export the CPLEX LP and CPO text formats and are used by
// the tests.
package model
