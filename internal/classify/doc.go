// Package classify turns raw log lines into structured error records.
//
// Classification is a pure function over (line, file path): an ordered set of
// per-source-kind regex tables is tried first, then a generic keyword scan.
// Lines that match nothing produce no record. Records are immutable after
// construction; every downstream component treats them as read-only.
package classify
