package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// Signature credentials may be sent as headers instead of body fields.
// When HeaderSignature is set the body is not consulted for them.
const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderSignature = "X-Wallet-Signature"
	HeaderMessage   = "X-Wallet-Message"
	HeaderTimestamp = "X-Wallet-Timestamp"
)

// RequireWalletSignature verifies the signature fields of the request and
// attaches a ProvenIdentity. The body stays readable for the handler through
// ShouldBindBodyWith.
func RequireWalletSignature(v *Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		var req Request
		if c.GetHeader(HeaderSignature) != "" {
			req = Request{
				WalletAddress: c.GetHeader(HeaderWallet),
				Signature:     c.GetHeader(HeaderSignature),
				Message:       c.GetHeader(HeaderMessage),
				Timestamp:     json.Number(strings.TrimSpace(c.GetHeader(HeaderTimestamp))),
			}
		} else if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		id, authErr := v.VerifyWalletSignature(req)
		if authErr != nil {
			logger.Info("wallet signature rejected",
				zap.String("path", c.FullPath()),
				zap.String("reason", authErr.Reason),
				zap.Error(authErr),
			)
			c.AbortWithStatusJSON(authErr.Status, gin.H{"error": authErr.Reason})
			return
		}

		c.Set(provenKey, id)
		c.Next()
	}
}

// RequireClaimedOwnership rejects the request with 403 unless the path
// parameter equals the named body field, ignoring case. This is not proof
// of key ownership.
func RequireClaimedOwnership(param, field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		claimed, _ := body[field].(string)
		pathValue := strings.TrimSpace(c.Param(param))
		if claimed == "" || !strings.EqualFold(strings.TrimSpace(claimed), pathValue) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "wallet address mismatch"})
			return
		}

		c.Set(claimedKey, ClaimedIdentity{wallet: strings.ToLower(pathValue)})
		c.Next()
	}
}
