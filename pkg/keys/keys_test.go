package keys

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateAttesterKeyPair(t *testing.T) {
	kp, err := GenerateAttesterKeyPair()
	if err != nil {
		t.Fatalf("GenerateAttesterKeyPair() failed: %v", err)
	}
	if len(kp.PrivateKey) != 32 {
		t.Fatalf("expected 32-byte private key, got %d", len(kp.PrivateKey))
	}
	if len(kp.PublicKey) != 33 {
		t.Fatalf("expected 33-byte compressed public key, got %d", len(kp.PublicKey))
	}

	other, err := GenerateAttesterKeyPair()
	if err != nil {
		t.Fatalf("GenerateAttesterKeyPair() failed: %v", err)
	}
	if bytes.Equal(kp.PrivateKey, other.PrivateKey) {
		t.Fatal("two generated keypairs must differ")
	}
}

func TestDeriveAttesterKeyPair_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0xAB}, 32)

	kp1, err := DeriveAttesterKeyPair("platform-7", seed)
	if err != nil {
		t.Fatalf("DeriveAttesterKeyPair() failed: %v", err)
	}
	kp2, err := DeriveAttesterKeyPair("platform-7", seed)
	if err != nil {
		t.Fatalf("DeriveAttesterKeyPair() failed: %v", err)
	}
	if !bytes.Equal(kp1.PrivateKey, kp2.PrivateKey) {
		t.Fatal("same seed and platform must derive the same key")
	}

	kp3, err := DeriveAttesterKeyPair("platform-8", seed)
	if err != nil {
		t.Fatalf("DeriveAttesterKeyPair() failed: %v", err)
	}
	if bytes.Equal(kp1.PrivateKey, kp3.PrivateKey) {
		t.Fatal("different platforms must derive different keys")
	}
}

func TestDeriveAttesterKeyPair_ShortSeed(t *testing.T) {
	if _, err := DeriveAttesterKeyPair("platform-7", []byte("short")); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestAddressMatchesECDSAKey(t *testing.T) {
	kp, err := GenerateAttesterKeyPair()
	if err != nil {
		t.Fatalf("GenerateAttesterKeyPair() failed: %v", err)
	}

	addr, err := kp.Address()
	if err != nil {
		t.Fatalf("Address() failed: %v", err)
	}
	key, err := kp.ECDSA()
	if err != nil {
		t.Fatalf("ECDSA() failed: %v", err)
	}
	if addr != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("Address() does not match the ECDSA public key")
	}
}

func TestEncryptDecryptPrivateKey(t *testing.T) {
	kp, err := GenerateAttesterKeyPair()
	if err != nil {
		t.Fatalf("GenerateAttesterKeyPair() failed: %v", err)
	}
	masterKey, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() failed: %v", err)
	}

	encrypted, err := EncryptPrivateKey(kp.PrivateKey, masterKey)
	if err != nil {
		t.Fatalf("EncryptPrivateKey() failed: %v", err)
	}

	decrypted, err := DecryptPrivateKey(encrypted, masterKey)
	if err != nil {
		t.Fatalf("DecryptPrivateKey() failed: %v", err)
	}
	if !bytes.Equal(decrypted, kp.PrivateKey) {
		t.Fatal("decrypted key does not match original")
	}
}

func TestDecryptPrivateKey_WrongMasterKey(t *testing.T) {
	kp, err := GenerateAttesterKeyPair()
	if err != nil {
		t.Fatalf("GenerateAttesterKeyPair() failed: %v", err)
	}
	masterKey, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() failed: %v", err)
	}
	wrongKey, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() failed: %v", err)
	}

	encrypted, err := EncryptPrivateKey(kp.PrivateKey, masterKey)
	if err != nil {
		t.Fatalf("EncryptPrivateKey() failed: %v", err)
	}
	if _, err := DecryptPrivateKey(encrypted, wrongKey); err == nil {
		t.Fatal("decryption with the wrong master key must fail")
	}
}

func TestEncryptPrivateKey_BadSizes(t *testing.T) {
	if _, err := EncryptPrivateKey(make([]byte, 32), make([]byte, 16)); err == nil {
		t.Fatal("expected error for short master key")
	}
	if _, err := EncryptPrivateKey(make([]byte, 31), make([]byte, 32)); err == nil {
		t.Fatal("expected error for short private key")
	}
}

func TestMasterKeyBase64Roundtrip(t *testing.T) {
	masterKey, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() failed: %v", err)
	}

	decoded, err := MasterKeyFromBase64(MasterKeyToBase64(masterKey))
	if err != nil {
		t.Fatalf("MasterKeyFromBase64() failed: %v", err)
	}
	if !bytes.Equal(decoded, masterKey) {
		t.Fatal("base64 roundtrip does not preserve the master key")
	}

	if _, err := MasterKeyFromBase64("dG9vc2hvcnQ="); err == nil {
		t.Fatal("expected error for wrong-length key")
	}
}
