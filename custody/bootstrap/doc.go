// Package bootstrap deploys a custody pair: it constructs the authorization
// validator and the ledger, binds the validator to the ledger, and produces
// the deployment record off-chain tooling signs against.
//
// Deploy is the only supported way to assemble a pair. Constructing the
// components by hand and skipping Bind leaves a validator that rejects every
// withdrawal.
package bootstrap
