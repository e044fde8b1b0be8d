// Package api exposes the research DAO REST surface over gin.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"researchdao/internal/auth"
	"researchdao/internal/indexer"
	"researchdao/internal/metrics"
	"researchdao/internal/portfolio"
	"researchdao/internal/storage"
)

// Store is the persistence surface the handlers need.
type Store interface {
	storage.DAOStore
	storage.InvestorStore
	storage.InvestmentStore
}

// StatusProvider reports indexer state for /api/blockchain-status.
type StatusProvider interface {
	Status() indexer.Status
}

// Options configures a Server. Store and Verifier are required.
type Options struct {
	Store       Store
	Indexer     StatusProvider
	Verifier    *auth.Verifier
	Dedup       portfolio.DedupRule
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	CORSOrigins []string
	RateLimit   rate.Limit
	RateBurst   int
	// RPCURL is reported by the status route when no indexer was built.
	RPCURL string
}

// Server owns the gin router and its long-lived middleware state.
type Server struct {
	store    Store
	indexer  StatusProvider
	verifier *auth.Verifier
	dedup    portfolio.DedupRule
	metrics  *metrics.Collector
	logger   *zap.Logger
	rpcURL   string

	limiter *limiterStore
	router  *gin.Engine
	cancel  context.CancelFunc
}

// NewServer builds the router from opts, filling unset dependencies with
// defaults, and starts the rate limiter janitor. Call Close to stop it.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier("", 0)
	}
	dedup := opts.Dedup
	if dedup.Currency == "" {
		dedup = portfolio.DefaultDedupRule()
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    opts.Store,
		indexer:  opts.Indexer,
		verifier: verifier,
		dedup:    dedup,
		metrics:  opts.Metrics,
		logger:   logger,
		rpcURL:   opts.RPCURL,
		limiter:  newLimiterStore(limit, opts.RateBurst, 10*time.Minute),
		cancel:   cancel,
	}
	s.limiter.startJanitor(ctx, time.Minute)

	r := gin.New()
	r.Use(requestID(), s.recoverer(), s.accessLog(), cors.New(corsConfig(opts.CORSOrigins)))
	s.routes(r)
	s.router = r
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", headerRequestID,
			auth.HeaderWallet, auth.HeaderSignature, auth.HeaderMessage, auth.HeaderTimestamp,
		},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) routes(r *gin.Engine) {
	limited := s.rateLimit()
	signed := auth.RequireWalletSignature(s.verifier, s.logger)

	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/daos", s.listDAOs)
	api.GET("/daos/:id", s.getDAO)
	api.POST("/daos", limited, s.createDAO)

	api.POST("/investors", limited, signed, s.createInvestor)
	api.GET("/investors/:walletAddress", s.getInvestor)
	api.PATCH("/investors/:walletAddress", limited, auth.RequireClaimedOwnership("walletAddress", "walletAddress"), s.updateInvestor)

	api.POST("/investor-preferences", limited, signed, s.savePreferences)
	api.GET("/investor-preferences/:walletAddress", s.getPreferences)

	api.POST("/investments", limited, s.createInvestment)
	api.GET("/investments/:walletAddress", s.listInvestments)
	api.GET("/blockchain-investments/:walletAddress", s.listBlockchainInvestments)
	api.GET("/portfolio/:walletAddress", s.getPortfolio)

	api.GET("/blockchain-status", s.blockchainStatus)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router with the process timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// Close stops the limiter janitor.
func (s *Server) Close() {
	s.cancel()
}
