// Package keys provides attester key generation and encryption at rest.
// Attestation signing uses secp256k1, the same curve the settlement engine
// recovers against, so any attester key doubles as an EVM-style identity.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// AttesterKeyPair is a secp256k1 signing keypair for issuing claim
// attestations.
type AttesterKeyPair struct {
	PublicKey  []byte // 33-byte compressed secp256k1 public key
	PrivateKey []byte // 32-byte secp256k1 private key
}

// GenerateAttesterKeyPair generates a new random attester keypair.
func GenerateAttesterKeyPair() (*AttesterKeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 keypair: %w", err)
	}
	return fromECDSA(privateKey), nil
}

// DeriveAttesterKeyPair deterministically derives an attester keypair for a
// named platform from a server seed, using HKDF with SHA-256. The same seed
// and platform always yield the same key, so a lost key file can be
// regenerated without rotating the on-record signer.
func DeriveAttesterKeyPair(platform string, serverSeed []byte) (*AttesterKeyPair, error) {
	if len(serverSeed) < 32 {
		return nil, fmt.Errorf("server seed must be at least 32 bytes")
	}

	info := []byte("attester-key-" + platform)
	hkdfReader := hkdf.New(sha256.New, serverSeed, nil, info)

	privateKeyBytes := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, privateKeyBytes); err != nil {
		return nil, fmt.Errorf("failed to derive key seed: %w", err)
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create private key: %w", err)
	}
	return fromECDSA(privateKey), nil
}

// AttesterKeyPairFromPrivateKey reconstructs a keypair from raw private key bytes.
func AttesterKeyPairFromPrivateKey(privateKeyBytes []byte) (*AttesterKeyPair, error) {
	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return fromECDSA(privateKey), nil
}

func fromECDSA(privateKey *ecdsa.PrivateKey) *AttesterKeyPair {
	return &AttesterKeyPair{
		PublicKey:  crypto.CompressPubkey(&privateKey.PublicKey),
		PrivateKey: crypto.FromECDSA(privateKey),
	}
}

// ECDSA returns the private key in the form the attestation signer expects.
func (kp *AttesterKeyPair) ECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(kp.PrivateKey)
}

// Address returns the EVM-style address of the keypair; this is the signer
// address recorded in the engine configuration.
func (kp *AttesterKeyPair) Address() (common.Address, error) {
	pub, err := crypto.DecompressPubkey(kp.PublicKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// PublicKeyHex returns the public key as a hex string (for display/logging)
func (kp *AttesterKeyPair) PublicKeyHex() string {
	return fmt.Sprintf("%x", kp.PublicKey)
}

// PrivateKeyHex returns the private key as a hex string with 0x prefix
func (kp *AttesterKeyPair) PrivateKeyHex() string {
	return fmt.Sprintf("0x%x", kp.PrivateKey)
}

// EncryptPrivateKey seals an attester private key under the master key with
// AES-256-GCM. The result is base64 over nonce || ciphertext || tag, which is
// what DecryptPrivateKey and the attest CLI's -encrypted-key flag accept.
func EncryptPrivateKey(privateKey []byte, masterKey []byte) (string, error) {
	if len(masterKey) != 32 {
		return "", fmt.Errorf("master key must be 32 bytes (AES-256)")
	}
	if len(privateKey) != 32 {
		return "", fmt.Errorf("private key must be 32 bytes (secp256k1)")
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, privateKey, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptPrivateKey reverses EncryptPrivateKey. A wrong master key or a
// tampered blob fails GCM authentication rather than yielding a garbage key.
func DecryptPrivateKey(encrypted string, masterKey []byte) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (AES-256)")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	if len(plaintext) != 32 {
		return nil, fmt.Errorf("decrypted key has wrong size: got %d, want 32", len(plaintext))
	}

	return plaintext, nil
}

// GenerateMasterKey generates a new random 32-byte master key for encrypting
// attester keys at rest. Store it outside the repository (environment
// variable, secrets manager).
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}

// MasterKeyFromBase64 decodes a master key from its storage encoding and
// checks the length before it ever reaches the cipher.
func MasterKeyFromBase64(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// MasterKeyToBase64 is the storage encoding used by MasterKeyFromBase64.
func MasterKeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
