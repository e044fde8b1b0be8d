package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultPlatform = "ResearchDAO"
	DefaultMaxAge   = 5 * time.Minute

	ReasonMissingParameters = "missing authentication parameters"
	ReasonExpired           = "authentication expired"
	ReasonInvalidMessage    = "invalid authentication message"
	ReasonInvalidSignature  = "invalid signature"
)

// Request carries the signature fields of an authenticated request body.
// Timestamp is milliseconds since the Unix epoch, sent as a JSON number or
// numeric string.
type Request struct {
	WalletAddress string      `json:"walletAddress"`
	Signature     string      `json:"signature"`
	Message       string      `json:"message"`
	Timestamp     json.Number `json:"timestamp"`
}

// Error is a rejected authentication. Reason is safe to return to clients.
type Error struct {
	Status int
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Reason + ": " + e.cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.cause }

func unauthorized(reason string, cause error) *Error {
	return &Error{Status: http.StatusUnauthorized, Reason: reason, cause: cause}
}

// Verifier checks wallet signatures over the platform login message.
type Verifier struct {
	Platform string
	MaxAge   time.Duration
	Now      func() time.Time
}

// NewVerifier returns a Verifier for platform. An empty platform or a
// non-positive maxAge falls back to DefaultPlatform and DefaultMaxAge.
func NewVerifier(platform string, maxAge time.Duration) *Verifier {
	if platform == "" {
		platform = DefaultPlatform
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{Platform: platform, MaxAge: maxAge, Now: time.Now}
}

// ExpectedMessage is the exact text a wallet must sign for timestamp.
func (v *Verifier) ExpectedMessage(timestamp string) string {
	return fmt.Sprintf("Authenticate with %s: %s", v.Platform, timestamp)
}

// VerifyWalletSignature runs the checks in order and stops at the first
// failure.
func (v *Verifier) VerifyWalletSignature(req Request) (ProvenIdentity, *Error) {
	wallet := strings.TrimSpace(req.WalletAddress)
	tsText := strings.TrimSpace(req.Timestamp.String())
	if wallet == "" || req.Signature == "" || req.Message == "" || tsText == "" {
		return ProvenIdentity{}, unauthorized(ReasonMissingParameters, nil)
	}

	tsMillis, err := req.Timestamp.Int64()
	if err != nil {
		return ProvenIdentity{}, unauthorized(ReasonExpired, fmt.Errorf("parse timestamp: %w", err))
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	age := now().Sub(time.UnixMilli(tsMillis))
	if age > v.MaxAge || age < -v.MaxAge {
		return ProvenIdentity{}, unauthorized(ReasonExpired, nil)
	}

	expected := v.ExpectedMessage(tsText)
	if subtle.ConstantTimeCompare([]byte(req.Message), []byte(expected)) != 1 {
		return ProvenIdentity{}, unauthorized(ReasonInvalidMessage, nil)
	}

	recovered, err := RecoverAddress(req.Message, req.Signature)
	if err != nil {
		return ProvenIdentity{}, unauthorized(ReasonInvalidSignature, err)
	}
	if !strings.EqualFold(recovered.Hex(), wallet) {
		return ProvenIdentity{}, unauthorized(ReasonInvalidSignature, nil)
	}

	return ProvenIdentity{wallet: strings.ToLower(recovered.Hex())}, nil
}

// RecoverAddress returns the signer of an EIP-191 personal message.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
