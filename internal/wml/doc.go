// Package wml talks to the Watson Machine Learning v4 REST API on behalf of
// the solver bridges.
//
// A Connector carries the credentials, the tunables and the deployment
// shape (runtime, T-shirt size, node count). It implements job.Service for
// the job lifecycle controller and adds deployment, model and space
// management on top.
//
// Job payloads are assembled textually: the JSON skeleton is marshalled
// with a placeholder for input_data, and the base64 model artifact is
// streamed into the gap so it is never held twice in memory.
package wml
