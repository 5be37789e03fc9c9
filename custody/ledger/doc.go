// Package ledger implements the custody ledger: the account of record for
// held value and the only component that moves it.
//
// The ledger trusts exactly one authorization validator. Every withdrawal
// must present a signed approval; the ledger forwards it to the validator,
// and only a verified-and-consumed approval releases value. The accounted
// balance is decremented before the external transfer runs, so no observer,
// including recipient code executing during the transfer, ever sees value
// both accounted and in flight.
package ledger
