package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"researchdao/internal/model"
)

func (s *Server) createInvestment(c *gin.Context) {
	writeError(c, http.StatusGone, "investment creation through the API is disabled",
		"contribute through the DAO contract; on-chain investments are picked up by the indexer")
}

func (s *Server) listInvestments(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	invs, err := s.store.GetInvestorInvestments(c.Request.Context(), wallet)
	if err != nil {
		s.writeStoreError(c, "list investments", err)
		return
	}
	if invs == nil {
		invs = []model.Investment{}
	}
	c.JSON(http.StatusOK, invs)
}

func (s *Server) listBlockchainInvestments(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	invs, err := s.store.GetBlockchainInvestments(c.Request.Context(), wallet)
	if err != nil {
		s.writeStoreError(c, "list blockchain investments", err)
		return
	}
	if invs == nil {
		invs = []model.BlockchainInvestment{}
	}
	c.JSON(http.StatusOK, invs)
}
