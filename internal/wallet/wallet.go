package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Wallet is a freshly generated Ethereum identity. The address and key are
// derived from the mnemonic at the standard path m/44'/60'/0'/0/0.
type Wallet struct {
	Address    string
	PrivateKey string
	Mnemonic   string
}

// Generate creates a wallet from a new 128-bit (12 word) mnemonic.
func Generate() (Wallet, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return Wallet{}, fmt.Errorf("mnemonic entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Wallet{}, fmt.Errorf("mnemonic: %w", err)
	}
	return FromMnemonic(mnemonic)
}

// FromMnemonic derives the first account of the default Ethereum path.
func FromMnemonic(mnemonic string) (Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Wallet{}, fmt.Errorf("invalid mnemonic phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return Wallet{}, fmt.Errorf("master key: %w", err)
	}
	// m/44'/60'/0'/0/0
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart,
		0,
		0,
	}
	for _, n := range path {
		key, err = key.Derive(n)
		if err != nil {
			return Wallet{}, fmt.Errorf("derive key: %w", err)
		}
	}
	btcKey, err := key.ECPrivKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("ec key: %w", err)
	}
	priv := btcKey.ToECDSA()

	return Wallet{
		Address:    crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
		Mnemonic:   mnemonic,
	}, nil
}

// PersonalSign produces an Ethereum personal-message signature over the
// UTF-8 message: keccak-256 of the "\x19Ethereum Signed Message:\n<len>"
// prefixed bytes, signed recoverably, V offset by 27, hex encoded.
func PersonalSign(privateKeyHex, message string) (string, error) {
	key, err := parseKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	msg := []byte(message)
	prefixed := append([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))), msg...)
	hash := crypto.Keccak256(prefixed)

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func parseKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
