// Package chart orchestrates progressive chart loading: keyed latest-wins
// fetches of chart payloads, indicator dispatch to a worker with a timeout and
// a synchronous fallback, overlay merging, plot lifecycle and teardown.
package chart

import "errors"

var (
	// ErrComputationTimeout is returned when a worker task is not answered
	// within the task timeout.
	ErrComputationTimeout = errors.New("computation timeout")
	// ErrTransport wraps network and chart API failures.
	ErrTransport = errors.New("transport failure")
	// ErrRender wraps plotting failures, including a missing target.
	ErrRender = errors.New("render failure")
	// ErrWorkerClosed is returned for tasks still pending when the worker
	// goes away.
	ErrWorkerClosed = errors.New("worker closed")
)
