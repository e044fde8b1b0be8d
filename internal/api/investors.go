package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"researchdao/internal/auth"
	"researchdao/internal/model"
	"researchdao/internal/storage"
)

// Profile fields of a signed investor request. Any walletAddress in the body
// is ignored in favor of the verified one.
type createInvestorRequest struct {
	Pseudonym         string `json:"pseudonym"`
	ProfileCompleted  bool   `json:"profileCompleted"`
	ShowOnLeaderboard bool   `json:"showOnLeaderboard"`
}

type preferencesRequest struct {
	ResearchAreas     []string `json:"researchAreas"`
	RiskTolerance     string   `json:"riskTolerance"`
	InvestmentHorizon string   `json:"investmentHorizon"`
	NotifyNewDAOs     bool     `json:"notifyNewDaos"`
}

func (s *Server) createInvestor(c *gin.Context) {
	id := auth.MustProvenIdentity(c)

	var req createInvestorRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		writeError(c, http.StatusBadRequest, "invalid investor", err.Error())
		return
	}

	inv, err := s.store.CreateInvestor(c.Request.Context(), model.Investor{
		WalletAddress:     id.Wallet(),
		Pseudonym:         req.Pseudonym,
		ProfileCompleted:  req.ProfileCompleted,
		ShowOnLeaderboard: req.ShowOnLeaderboard,
	})
	if err != nil {
		s.writeStoreError(c, "create investor", err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) getInvestor(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	inv, err := s.store.GetInvestor(c.Request.Context(), wallet)
	if err != nil {
		s.writeStoreError(c, "get investor", err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) updateInvestor(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	var update model.InvestorUpdate
	if err := c.ShouldBindBodyWith(&update, binding.JSON); err != nil {
		writeError(c, http.StatusBadRequest, "invalid investor update", err.Error())
		return
	}
	inv, err := s.store.UpdateInvestor(c.Request.Context(), wallet, update)
	if err != nil {
		s.writeStoreError(c, "update investor", err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) savePreferences(c *gin.Context) {
	id := auth.MustProvenIdentity(c)
	ctx := c.Request.Context()

	var req preferencesRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		writeError(c, http.StatusBadRequest, "invalid preferences", err.Error())
		return
	}

	if _, err := s.store.GetInvestor(ctx, id.Wallet()); errors.Is(err, storage.ErrNotFound) {
		_, err = s.store.CreateInvestor(ctx, model.Investor{WalletAddress: id.Wallet()})
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			s.writeStoreError(c, "create investor", err)
			return
		}
		s.logger.Info("investor created for preferences", zap.String("wallet", id.Wallet()))
	} else if err != nil {
		s.writeStoreError(c, "get investor", err)
		return
	}

	areas := req.ResearchAreas
	if areas == nil {
		areas = []string{}
	}
	prefs, err := s.store.SaveInvestorPreferences(ctx, model.InvestorPreferences{
		WalletAddress:     id.Wallet(),
		ResearchAreas:     areas,
		RiskTolerance:     req.RiskTolerance,
		InvestmentHorizon: req.InvestmentHorizon,
		NotifyNewDAOs:     req.NotifyNewDAOs,
	})
	if err != nil {
		s.writeStoreError(c, "save preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) getPreferences(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	prefs, err := s.store.GetInvestorPreferences(c.Request.Context(), wallet)
	if err != nil {
		s.writeStoreError(c, "get preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}
