package custody

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Identity is an opaque 20-byte reference to a participant: a ledger or
// validator instance, a signer, a depositor, or a withdrawal recipient.
// The zero value is the null identity and is rejected wherever an identity
// must designate a real party.
type Identity = common.Address

// AuthorizationID is the 32-byte domain-separated digest of one approval.
// It is the sole key of the consumption set: equal digests are the same
// authorization, distinct digests are independent.
type AuthorizationID = common.Hash

// NonceSize is the byte length of an approval nonce.
const NonceSize = 32

// Nonce is the random uniqueness component of an approval message. It carries
// no ordering semantics; its only job is making otherwise identical approvals
// produce distinct authorization IDs.
type Nonce [NonceSize]byte

// NewNonce draws a nonce from the operating system's entropy source.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("custody: generate nonce: %w", err)
	}

	return n, nil
}

// ParseNonce decodes a 0x-prefixed hex string into a nonce. The input must
// encode exactly NonceSize bytes.
func ParseNonce(s string) (Nonce, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Nonce{}, fmt.Errorf("custody: parse nonce: %w", err)
	}

	if len(raw) != NonceSize {
		return Nonce{}, fmt.Errorf("custody: parse nonce: expected %d bytes, got %d", NonceSize, len(raw))
	}

	var n Nonce
	copy(n[:], raw)

	return n, nil
}

// Hex returns the 0x-prefixed hex encoding of the nonce.
func (n Nonce) Hex() string {
	return hexutil.Encode(n[:])
}

// IsNilIdentity reports whether id is the null identity.
func IsNilIdentity(id Identity) bool {
	return id == (Identity{})
}

// RandomIdentity draws a fresh instance identity from the operating system's
// entropy source. Used by deployment tooling to mint validator and ledger
// instance identities.
func RandomIdentity() (Identity, error) {
	var id Identity
	if _, err := rand.Read(id[:]); err != nil {
		return Identity{}, fmt.Errorf("custody: generate identity: %w", err)
	}

	return id, nil
}
