// Package signing implements the off-chain approver: key generation, key-file
// encoding, and approval issuance. It never talks to a validator or ledger;
// the only shared artifact is the digest contract in the approval package.
package signing
