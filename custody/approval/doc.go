// Package approval defines the signed withdrawal approval: the message
// structure, the deployment-scoped signing domain, and the structured digest
// both the off-chain signer and the validator compute bit-for-bit identically.
//
// The digest is the authorization ID. It is the only replay-protection key in
// the system, so every field that scopes an approval (system constants,
// network, validator instance, ledger, recipient, amount, nonce) feeds it.
package approval
