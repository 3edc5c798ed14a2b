// Package source supplies raw pushes to the delivery queue.
//
// Snapshot holds the push history and reference data that the external
// real-time client writes to disk. Stream reads push events one JSON
// object per line, usually from stdin or a FIFO.
package source
