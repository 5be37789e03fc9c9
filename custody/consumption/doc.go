// Package consumption tracks which authorization IDs have been consumed.
//
// The consumed set is append-only: once an ID enters it, no operation removes
// it. Store implementations must make the unconsumed-to-consumed transition
// atomic so exactly one caller wins when the same approval is presented
// concurrently.
package consumption
