// Package auth proves which wallet sent a request.
//
// Two identities exist and they are deliberately different types:
// ProvenIdentity is only produced by a verified EIP-191 signature, while
// ClaimedIdentity only records that a path parameter matched a body field.
// Handlers that need cryptographic proof take a ProvenIdentity and cannot
// be handed a ClaimedIdentity by mistake.
package auth

import (
	"github.com/gin-gonic/gin"
)

const (
	provenKey  = "auth.proven_identity"
	claimedKey = "auth.claimed_identity"
)

// ProvenIdentity is a wallet whose key signed the current request.
type ProvenIdentity struct {
	wallet string
}

// Wallet returns the lower-cased wallet address.
func (p ProvenIdentity) Wallet() string { return p.wallet }

// ClaimedIdentity is a wallet the caller asserted without proof.
type ClaimedIdentity struct {
	wallet string
}

// Wallet returns the lower-cased wallet address.
func (c ClaimedIdentity) Wallet() string { return c.wallet }

// ProvenIdentityFrom returns the identity attached by RequireWalletSignature.
func ProvenIdentityFrom(c *gin.Context) (ProvenIdentity, bool) {
	v, ok := c.Get(provenKey)
	if !ok {
		return ProvenIdentity{}, false
	}
	id, ok := v.(ProvenIdentity)
	return id, ok && id.wallet != ""
}

// MustProvenIdentity is ProvenIdentityFrom for handlers mounted behind
// RequireWalletSignature. It panics when the middleware is missing.
func MustProvenIdentity(c *gin.Context) ProvenIdentity {
	id, ok := ProvenIdentityFrom(c)
	if !ok {
		panic("auth: handler mounted without RequireWalletSignature")
	}
	return id
}

// ClaimedIdentityFrom returns the identity attached by
// RequireClaimedOwnership.
func ClaimedIdentityFrom(c *gin.Context) (ClaimedIdentity, bool) {
	v, ok := c.Get(claimedKey)
	if !ok {
		return ClaimedIdentity{}, false
	}
	id, ok := v.(ClaimedIdentity)
	return id, ok && id.wallet != ""
}
