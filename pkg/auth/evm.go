// Package auth establishes caller identity at the HTTP boundary. Authorized
// operations carry an EIP-191 personal-sign signature over the raw request
// body; the recovered address is the caller identity the engine authorizes
// against. The package also provides an optional JWKS-backed JWT gate.
package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverEIP191Signer verifies an EIP-191 personal_sign signature over the
// given message bytes and returns the recovered address.
func RecoverEIP191Signer(message []byte, signature string) (common.Address, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}

	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d, got %d",
			crypto.SignatureLength, len(sigBytes))
	}

	// v can be 0, 1, 27, or 28 - normalize to 0 or 1
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	msgHash := crypto.Keccak256Hash([]byte(prefixed))

	pubKey, err := crypto.SigToPub(msgHash.Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// SignEIP191 produces a personal_sign signature over message with the given
// hex-encoded private key. Used by operational tooling and tests.
func SignEIP191(message []byte, privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	msgHash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(msgHash.Bytes(), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// ValidateAddress checks if a string is a valid EVM-style address.
func ValidateAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	if len(address) != 42 {
		return false
	}
	_, err := hex.DecodeString(address[2:])
	return err == nil
}

// NormalizeAddress returns a checksummed address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
