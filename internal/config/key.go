package config

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SigningKey resolves the sender key: an encrypted keystore file unlocked with
// KEYSTORE_PASSPHRASE, or the plaintext PRIVATE_KEY hex fallback.
func (st Settings) SigningKey() (*ecdsa.PrivateKey, error) {
	if st.KeystoreFile != "" {
		raw, err := os.ReadFile(st.KeystoreFile)
		if err != nil {
			return nil, errors.Wrap(err, "read keystore file")
		}
		key, err := keystore.DecryptKey(raw, st.KeystorePassphrase)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt keystore")
		}
		return key.PrivateKey, nil
	}
	h := strings.TrimSpace(strings.TrimPrefix(st.PrivateKeyHex, "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return prv, nil
}

// MaskHex shortens a secret hex string for logs.
func MaskHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 10 {
		return "***"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
