// Command attest is the operational tool for attester keys and claim
// attestations. It can generate or derive a signing keypair, encrypt it for
// storage, and sign attestations that the settlement engine will accept.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrow/sign"
	"github.com/creatorpay/escrowd/pkg/keys"
)

const usageText = `Usage:
  attest <command> [flags]

Commands:
  keygen   generate a new attester keypair (random, or derived with -seed)
  sign     sign a claim attestation

Examples:
  attest keygen
  attest keygen -seed $SEED_B64 -platform 7
  attest keygen -encrypt -master-key $MASTER_KEY_B64
  attest sign -key 0x... -name escrowd -version 1 -chain-id 1 -contract 0x... \
    -platform-id 7 -user-id 42 -payout 0x... -deposit-id 3 -nonce 1001 -expiry 1767225600
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "sign":
		err = runSign(os.Args[2:])
	default:
		fmt.Print(usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	seedB64 := fs.String("seed", "", "Base64 server seed for deterministic derivation (optional)")
	platform := fs.String("platform", "", "Platform label for derivation (required with -seed)")
	encrypt := fs.Bool("encrypt", false, "Encrypt the private key with a master key")
	masterKeyB64 := fs.String("master-key", os.Getenv("ESCROWD_MASTER_KEY"), "Base64 master key (defaults to ESCROWD_MASTER_KEY)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var kp *keys.AttesterKeyPair
	var err error
	if *seedB64 != "" {
		if *platform == "" {
			return fmt.Errorf("-platform is required when deriving from a seed")
		}
		seed, decErr := keys.MasterKeyFromBase64(*seedB64)
		if decErr != nil {
			return fmt.Errorf("invalid seed: %w", decErr)
		}
		kp, err = keys.DeriveAttesterKeyPair(*platform, seed)
	} else {
		kp, err = keys.GenerateAttesterKeyPair()
	}
	if err != nil {
		return err
	}

	addr, err := kp.Address()
	if err != nil {
		return err
	}

	out := map[string]any{
		"address":    addr.Hex(),
		"public_key": kp.PublicKeyHex(),
	}

	if *encrypt {
		if *masterKeyB64 == "" {
			return fmt.Errorf("no master key: pass -master-key or set ESCROWD_MASTER_KEY (hint: openssl rand -base64 32)")
		}
		masterKey, err := keys.MasterKeyFromBase64(*masterKeyB64)
		if err != nil {
			return fmt.Errorf("invalid master key: %w", err)
		}
		encrypted, err := keys.EncryptPrivateKey(kp.PrivateKey, masterKey)
		if err != nil {
			return err
		}
		out["encrypted_private_key"] = encrypted
	} else {
		out["private_key"] = kp.PrivateKeyHex()
	}

	return printJSON(out)
}

func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	keyHex := fs.String("key", "", "Attester private key as hex")
	encryptedKey := fs.String("encrypted-key", "", "Encrypted attester private key (base64)")
	masterKeyB64 := fs.String("master-key", os.Getenv("ESCROWD_MASTER_KEY"), "Base64 master key for -encrypted-key")

	name := fs.String("name", "escrowd", "Domain name")
	version := fs.String("version", "1", "Domain version")
	chainID := fs.Uint64("chain-id", 0, "Domain chain ID")
	contract := fs.String("contract", "", "Domain verifying contract address")

	platformID := fs.Uint64("platform-id", 0, "Attested platform ID")
	userID := fs.Uint64("user-id", 0, "Attested recipient user ID")
	payout := fs.String("payout", "", "Attested payout address")
	depositID := fs.Uint64("deposit-id", 0, "Attested deposit ID")
	nonce := fs.Uint64("nonce", 0, "Attestation nonce (single use)")
	expiry := fs.Int64("expiry", 0, "Attestation expiry as unix timestamp (valid through this second)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privBytes, err := loadPrivateKey(*keyHex, *encryptedKey, *masterKeyB64)
	if err != nil {
		return err
	}
	kp, err := keys.AttesterKeyPairFromPrivateKey(privBytes)
	if err != nil {
		return err
	}
	key, err := kp.ECDSA()
	if err != nil {
		return err
	}

	if !common.IsHexAddress(*contract) {
		return fmt.Errorf("invalid verifying contract address: %q", *contract)
	}
	if !common.IsHexAddress(*payout) {
		return fmt.Errorf("invalid payout address: %q", *payout)
	}

	domain := sign.Domain{
		Name:              *name,
		Version:           *version,
		ChainID:           *chainID,
		VerifyingContract: common.HexToAddress(*contract),
	}
	att := &escrow.ClaimAttestation{
		PlatformID:    *platformID,
		UserID:        *userID,
		PayoutAddress: common.HexToAddress(*payout),
		DepositID:     *depositID,
		Nonce:         *nonce,
		Expiry:        *expiry,
	}

	sig, err := sign.SignAttestation(domain, att, key)
	if err != nil {
		return err
	}

	addr, err := kp.Address()
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"attestation": att,
		"signature":   "0x" + hex.EncodeToString(sig),
		"signer":      addr.Hex(),
		"digest":      sign.Digest(domain, att).Hex(),
	})
}

func loadPrivateKey(keyHex, encryptedKey, masterKeyB64 string) ([]byte, error) {
	switch {
	case keyHex != "":
		b, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key hex: %w", err)
		}
		return b, nil
	case encryptedKey != "":
		if masterKeyB64 == "" {
			return nil, fmt.Errorf("no master key: pass -master-key or set ESCROWD_MASTER_KEY")
		}
		masterKey, err := keys.MasterKeyFromBase64(masterKeyB64)
		if err != nil {
			return nil, fmt.Errorf("invalid master key: %w", err)
		}
		return keys.DecryptPrivateKey(encryptedKey, masterKey)
	default:
		return nil, fmt.Errorf("no key provided: pass -key or -encrypted-key")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
