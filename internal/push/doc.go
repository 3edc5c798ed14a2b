// Package push turns raw pushes from the aggregation service into
// display-ready records and decides which of them deserve a desktop
// notification.
//
// Everything here is pure: no I/O, no clocks (callers pass "now"), no
// package state. The same raw input always normalizes to the same output.
package push
