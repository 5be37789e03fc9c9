// Package server exposes a read-only audit API over a deployed custody pair.
//
// The API grants no authority: every endpoint either reads state or computes
// values any holder of the public inputs could compute. Withdrawals, deposits,
// and binding stay in-process behind the ledger and validator types.
package server
