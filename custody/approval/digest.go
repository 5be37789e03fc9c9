package approval

import (
	"math/big"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of an approval signature: 65 bytes,
// [R || S || V] with V the recovery identifier.
const SignatureLength = crypto.SignatureLength

// Type hashes pin the field layout of the signed structures. Changing either
// string invalidates every previously issued approval.
var (
	domainTypeHash = crypto.Keccak256Hash(
		[]byte("CustodyDomain(string systemName,string systemVersion,uint64 networkId,address validator)"),
	)
	approvalTypeHash = crypto.Keccak256Hash(
		[]byte("WithdrawalApproval(address ledger,address recipient,uint256 amount,bytes32 nonce)"),
	)
)

// Separator returns the domain separator: the hash binding a signature to one
// deployment context.
func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		common.BigToHash(new(big.Int).SetUint64(d.NetworkID)).Bytes(),
		common.LeftPadBytes(d.Validator.Bytes(), common.HashLength),
	)
}

// structHash hashes the message fields under the approval type hash. The
// amount must already be validated non-nil and non-negative.
func (m Message) structHash() common.Hash {
	return crypto.Keccak256Hash(
		approvalTypeHash.Bytes(),
		common.LeftPadBytes(m.Ledger.Bytes(), common.HashLength),
		common.LeftPadBytes(m.Recipient.Bytes(), common.HashLength),
		common.BigToHash(m.Amount).Bytes(),
		m.Nonce[:],
	)
}

// ComputeID derives the authorization ID for a message under a domain.
// Deterministic and side-effect free: the signer, the validator, and any
// auditor reproduce the same ID from the same inputs.
func ComputeID(domain Domain, message Message) (custody.AuthorizationID, error) {
	if err := message.Validate(); err != nil {
		return custody.AuthorizationID{}, err
	}

	separator := domain.Separator()
	structHash := message.structHash()

	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		separator.Bytes(),
		structHash.Bytes(),
	), nil
}

// RecoverSigner recovers the identity whose key signed the authorization ID.
// Accepts both recovery identifier conventions for the trailing V byte
// (0/1 and 27/28).
func RecoverSigner(id custody.AuthorizationID, signature []byte) (custody.Identity, error) {
	if len(signature) != SignatureLength {
		return custody.Identity{}, custody.NewError(custody.ErrorInvalidSignature, "signature",
			"signature must be 65 bytes [R || S || V]")
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, signature)

	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	publicKey, err := crypto.SigToPub(id.Bytes(), normalized)
	if err != nil {
		return custody.Identity{}, custody.NewError(custody.ErrorInvalidSignature, "signature", err.Error())
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}
