// Package authtest signs login messages the way a browser wallet does.
package authtest

import (
	"crypto/ecdsa"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is a throwaway key pair.
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Address string
}

// NewWallet generates a fresh key pair.
func NewWallet(t testing.TB) Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// Sign produces a personal_sign signature with a 27/28 recovery byte.
func (w Wallet) Sign(t testing.TB, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.Key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// Fields returns the four signature fields for platform at time at.
func (w Wallet) Fields(t testing.TB, platform string, at time.Time) map[string]interface{} {
	t.Helper()
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	message := "Authenticate with " + platform + ": " + ts
	return map[string]interface{}{
		"walletAddress": strings.ToLower(w.Address),
		"signature":     w.Sign(t, message),
		"message":       message,
		"timestamp":     at.UnixMilli(),
	}
}

// Headers returns the signature credentials as request headers.
func (w Wallet) Headers(t testing.TB, platform string, at time.Time) map[string]string {
	t.Helper()
	f := w.Fields(t, platform, at)
	return map[string]string{
		"X-Wallet-Address":   f["walletAddress"].(string),
		"X-Wallet-Signature": f["signature"].(string),
		"X-Wallet-Message":   f["message"].(string),
		"X-Wallet-Timestamp": strconv.FormatInt(at.UnixMilli(), 10),
	}
}
