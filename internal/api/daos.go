package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"researchdao/internal/model"
)

type createDAORequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
	Category    string `json:"category"`
	DAOAddress  string `json:"daoAddress"`
	TokenSymbol string `json:"tokenSymbol"`
}

func (s *Server) listDAOs(c *gin.Context) {
	daos, err := s.store.ListResearchDAOs(c.Request.Context())
	if err != nil {
		s.writeStoreError(c, "list daos", err)
		return
	}
	if daos == nil {
		daos = []model.DAORecord{}
	}
	c.JSON(http.StatusOK, daos)
}

func (s *Server) getDAO(c *gin.Context) {
	dao, err := s.store.GetResearchDAO(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeStoreError(c, "get dao", err)
		return
	}
	c.JSON(http.StatusOK, dao)
}

func (s *Server) createDAO(c *gin.Context) {
	var req createDAORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid dao", err.Error())
		return
	}
	addr := strings.TrimSpace(req.DAOAddress)
	if addr != "" && !common.IsHexAddress(addr) {
		writeError(c, http.StatusBadRequest, "invalid dao", "daoAddress is not a hex address")
		return
	}

	dao, err := s.store.CreateResearchDAO(c.Request.Context(), model.DAORecord{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		DAOAddress:  strings.ToLower(addr),
		TokenSymbol: req.TokenSymbol,
		Source:      model.DAOSourceAPI,
	})
	if err != nil {
		s.writeStoreError(c, "create dao", err)
		return
	}
	c.JSON(http.StatusCreated, dao)
}
