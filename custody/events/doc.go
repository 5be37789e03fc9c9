// Package events defines the records emitted after custody operations commit
// and the sinks that carry them.
//
// Records are observational: emission happens after the state change is
// final, and a sink failure never rolls the operation back. Components log
// sink errors and move on.
package events
