// Package link holds transport-independent Link helpers: the connect retry
// policy and an in-memory device fleet used by the simulator and tests.
package link
