// Package trace provides leveled diagnostic tracing for the triage pipeline.
//
// A Tracer receives Events emitted by the driver, the backends, the minifier
// and the profiler. Storage is pluggable: stream (immediate write), ring
// (last-N in memory, dumped on crash), or both. Verbosity is controlled by
// Level; each level is a superset of the next stricter one.
package trace
