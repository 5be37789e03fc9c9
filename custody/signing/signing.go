package signing

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/approval"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNilPrivateKey is returned when a signer is constructed without a key.
	ErrNilPrivateKey = errors.New("approver private key is required")
	// ErrNilPublicKey is returned when an identity is derived from a nil key.
	ErrNilPublicKey = errors.New("public key is required")
)

// GenerateApproverKey creates a fresh secp256k1 keypair for an approver.
func GenerateApproverKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Address derives the identity of a public key.
func Address(publicKey *ecdsa.PublicKey) (custody.Identity, error) {
	if publicKey == nil || publicKey.X == nil || publicKey.Y == nil {
		return custody.Identity{}, ErrNilPublicKey
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// EncodePrivateKey returns the hex encoding of the key material, the format
// used by approver key files.
func EncodePrivateKey(key *ecdsa.PrivateKey) (string, error) {
	if key == nil {
		return "", ErrNilPrivateKey
	}

	return hex.EncodeToString(crypto.FromECDSA(key)), nil
}

// ParsePrivateKey decodes a hex-encoded private key, tolerating surrounding
// whitespace and an optional 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")

	return crypto.HexToECDSA(trimmed)
}

// Signer issues withdrawal approvals for exactly one deployment domain.
type Signer struct {
	domain approval.Domain
	key    *ecdsa.PrivateKey
}

// New creates a signer bound to a domain and an approver private key.
func New(domain approval.Domain, key *ecdsa.PrivateKey) (*Signer, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	if key == nil {
		return nil, ErrNilPrivateKey
	}

	return &Signer{domain: domain, key: key}, nil
}

// Identity returns the approver identity derived from the signing key.
func (s *Signer) Identity() custody.Identity {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Domain returns the deployment domain the signer issues approvals for.
func (s *Signer) Domain() approval.Domain {
	return s.domain
}

// SignApproval computes the authorization ID for the message under the
// signer's domain and signs it. The returned signature is 65 bytes
// [R || S || V] and verifies via approval.RecoverSigner.
func (s *Signer) SignApproval(message approval.Message) (custody.AuthorizationID, []byte, error) {
	id, err := approval.ComputeID(s.domain, message)
	if err != nil {
		return custody.AuthorizationID{}, nil, err
	}

	signature, err := crypto.Sign(id.Bytes(), s.key)
	if err != nil {
		return custody.AuthorizationID{}, nil, err
	}

	return id, signature, nil
}

// SignedApproval is the transport form of an issued approval, as written by
// the signer tooling and consumed by withdrawal clients.
type SignedApproval struct {
	Ledger          custody.Identity        `json:"ledger"`
	Recipient       custody.Identity        `json:"recipient"`
	Amount          string                  `json:"amount"`
	Nonce           string                  `json:"nonce"`
	AuthorizationID custody.AuthorizationID `json:"authorizationId"`
	Signature       string                  `json:"signature"`
}

// IssueApproval signs the message and bundles it for transport.
func (s *Signer) IssueApproval(message approval.Message) (SignedApproval, error) {
	id, signature, err := s.SignApproval(message)
	if err != nil {
		return SignedApproval{}, err
	}

	return SignedApproval{
		Ledger:          message.Ledger,
		Recipient:       message.Recipient,
		Amount:          message.Amount.String(),
		Nonce:           message.Nonce.Hex(),
		AuthorizationID: id,
		Signature:       hexutil.Encode(signature),
	}, nil
}
