package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amberforum/economy/internal/bots"
	"github.com/amberforum/economy/internal/ranks"
	"github.com/amberforum/economy/pkg/economy"
)

// AuditSink persists admin-override audit rows.
type AuditSink interface {
	InsertAuditRecord(ctx context.Context, actorID string, action string, detailJSON string) error
}

// Server hosts the HTTP facade over the economy core.
type Server struct {
	cfg         Config
	logger      *zap.Logger
	ledger      *economy.Service
	botService  *bots.Service
	rankService *ranks.Service
	audit       AuditSink
}

// NewServer wires the facade.
func NewServer(cfg Config, logger *zap.Logger, ledger *economy.Service, botService *bots.Service, rankService *ranks.Service, audit AuditSink) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:         cfg,
		logger:      logger,
		ledger:      ledger,
		botService:  botService,
		rankService: rankService,
		audit:       audit,
	}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	router := server.setupRouter()
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("economy api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/transactions", server.handleExecute)
	api.GET("/wallets/:user", server.handleWallet)
	api.GET("/wallets/:user/history", server.handleHistory)
	api.POST("/xp", server.handleAwardXp)
	api.GET("/xp/:user", server.handleProgress)

	admin := router.Group("/admin")
	admin.Use(server.adminAuth())
	admin.GET("/treasury", server.handleGetTreasury)
	admin.POST("/treasury/refill", server.handleRefillTreasury)
	admin.POST("/wallets/:user/drain", server.handleDrainWallet)
	admin.POST("/wallets/:user/cap", server.handleSetWalletCap)
	admin.POST("/adjustments", server.handleAdminAdjustment)
	admin.POST("/bots", server.handleCreateBot)
	admin.POST("/bots/:id/toggle", server.handleToggleBot)
	admin.POST("/ticks", server.handleRunTick)

	return router
}
