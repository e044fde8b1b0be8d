package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchdao/internal/indexer"
	"researchdao/internal/model"
	"researchdao/internal/portfolio"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// walletParam reads and normalizes the :walletAddress path parameter.
func walletParam(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.Param("walletAddress"))
	if !common.IsHexAddress(raw) {
		writeError(c, http.StatusBadRequest, "invalid wallet address", raw)
		return "", false
	}
	return model.NormalizeWallet(raw), true
}

func (s *Server) blockchainStatus(c *gin.Context) {
	if s.indexer == nil {
		c.JSON(http.StatusOK, indexer.Status{
			Provider: indexer.ProviderDisconnected,
			RPCURL:   s.rpcURL,
			State:    indexer.StateUninitialized.String(),
		})
		return
	}
	c.JSON(http.StatusOK, s.indexer.Status())
}

type portfolioResponse struct {
	WalletAddress string                  `json:"walletAddress"`
	Entries       []portfolio.Entry       `json:"entries"`
	Summary       portfolio.Summary       `json:"summary"`
	Suppressed    []portfolio.Suppression `json:"suppressed,omitempty"`
}

func (s *Server) getPortfolio(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	db, err := s.store.GetInvestorInvestments(ctx, wallet)
	if err != nil {
		s.writeStoreError(c, "list investments", err)
		return
	}
	chain, err := s.store.GetBlockchainInvestments(ctx, wallet)
	if err != nil {
		s.writeStoreError(c, "list blockchain investments", err)
		return
	}

	res := portfolio.Merge(db, chain, s.dedup)
	for _, sup := range res.Suppressed {
		s.logger.Info("portfolio entry suppressed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("wallet", wallet),
			zap.String("key", sup.Entry.Key),
			zap.String("matched", sup.MatchedKey),
			zap.String("amount", sup.Entry.Amount.String()),
		)
	}
	s.metrics.AddSuppressed(len(res.Suppressed))

	c.JSON(http.StatusOK, portfolioResponse{
		WalletAddress: wallet,
		Entries:       res.Entries,
		Summary:       portfolio.Summarize(res.Entries),
		Suppressed:    res.Suppressed,
	})
}
