// Package sign implements the typed attestation digest and its signature
// scheme. The digest follows EIP-712: a domain separator binds every
// signature to one deployment (name, version, chain ID, instance address),
// so an attestation signed for one deployment can never be replayed against
// another. Off-chain signers using standard EIP-712 tooling produce
// byte-identical digests.
package sign

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/creatorpay/escrowd/pkg/escrow"
)

// Domain identifies one deployment of the settlement engine for signature
// binding purposes.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

var (
	domainTypeHash = crypto.Keccak256Hash(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	// Field order here must match the struct hash encoding below exactly.
	attestationTypeHash = crypto.Keccak256Hash(
		[]byte("ClaimAttestation(uint256 platformId,uint256 userId,address payoutAddress,uint256 depositId,uint256 nonce,uint256 expiry)"))
)

// Separator returns the EIP-712 domain separator for this deployment.
func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		uintWord(d.ChainID),
		addressWord(d.VerifyingContract),
	)
}

// Digest computes the signable EIP-712 digest for an attestation.
func Digest(d Domain, att *escrow.ClaimAttestation) common.Hash {
	structHash := crypto.Keccak256Hash(
		attestationTypeHash.Bytes(),
		uintWord(att.PlatformID),
		uintWord(att.UserID),
		addressWord(att.PayoutAddress),
		uintWord(att.DepositID),
		uintWord(att.Nonce),
		uintWord(uint64(att.Expiry)),
	)

	sep := d.Separator()
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		sep.Bytes(),
		structHash.Bytes(),
	)
}

// SignAttestation produces a 65-byte [R || S || V] signature over the
// attestation digest with V in {27, 28}, matching wallet conventions.
func SignAttestation(d Domain, att *escrow.ClaimAttestation, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := Digest(d, att)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign attestation: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner recovers the address that signed the attestation digest.
// Accepts recovery IDs of 0/1 as well as 27/28.
func RecoverSigner(d Domain, att *escrow.ClaimAttestation, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d, got %d",
			crypto.SignatureLength, len(signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := Digest(d, att)
	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

func uintWord(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}
