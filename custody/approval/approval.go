package approval

import (
	"math/big"

	"github.com/LerianStudio/lib-custody/custody"
)

// Domain fixes the deployment context a signature is valid for. Two domains
// that differ in any field never accept each other's approvals.
type Domain struct {
	Name      string
	Version   string
	NetworkID uint64
	Validator custody.Identity
}

// NewDomain builds the domain for one validator deployment, folding in the
// protocol-wide system constants.
func NewDomain(networkID uint64, validator custody.Identity) Domain {
	return Domain{
		Name:      custody.SystemName,
		Version:   custody.SystemVersion,
		NetworkID: networkID,
		Validator: validator,
	}
}

// Validate rejects domains that cannot scope a real deployment.
func (d Domain) Validate() error {
	if d.Name == "" || d.Version == "" {
		return custody.NewError(custody.ErrorInvalidConfig, "domain", "system name and version are required")
	}

	if custody.IsNilIdentity(d.Validator) {
		return custody.NewError(custody.ErrorInvalidIdentity, "domain.validator", "identity is the null identity")
	}

	return nil
}

// Message is one single-use withdrawal approval. It is immutable once signed:
// any field change yields a different authorization ID and invalidates the
// signature.
type Message struct {
	Ledger    custody.Identity
	Recipient custody.Identity
	Amount    *big.Int
	Nonce     custody.Nonce
}

// Validate rejects messages whose amount cannot be encoded into the digest.
// The unsigned-integer value model admits zero but never nil or negative, and
// the digest encodes amounts as 32 bytes, so wider values are rejected rather
// than truncated.
func (m Message) Validate() error {
	if m.Amount == nil || m.Amount.Sign() < 0 {
		return custody.NewError(custody.ErrorInvalidAmount, "amount", "amount must be a non-negative integer")
	}

	if m.Amount.BitLen() > 256 {
		return custody.NewError(custody.ErrorInvalidAmount, "amount", "amount exceeds 256 bits")
	}

	return nil
}
