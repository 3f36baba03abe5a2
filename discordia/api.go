package discordia

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPathHealth    = "/health"
	apiPathState     = "/api/state"
	apiPathReconcile = "/api/reconcile"
	pprofPrefix      = "/debug/pprof"
)

// API is the status server: a small read-mostly surface for health
// checks, a state summary, and a manual reconciliation trigger.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
	bot        *Discordia
}

func newAPI(bot *Discordia, config *APIConfig) *API {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		bot:    bot,
	}
	api.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	r.Use(gin.Recovery(), cors.New(corsConfig))

	r.GET(apiPathHealth, api.healthCheck)
	r.GET(apiPathState, api.stateSummary)
	r.POST(apiPathReconcile, api.triggerReconcile)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	return api
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) stateSummary(c *gin.Context) {
	state := a.bot.state
	c.JSON(
		http.StatusOK, gin.H{
			"connected":  a.bot.discord.Connected(),
			"uptime":     time.Since(a.bot.startedAt).String(),
			"categories": len(state.Categories()),
			"channels":   len(state.Channels()),
			"users":      state.UserCount(),
			"messages":   state.MessageCount(),
		},
	)
}

func (a *API) triggerReconcile(c *gin.Context) {
	report, err := a.bot.Reconcile(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrReconcileInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		a.logger.Error("manual reconcile failed", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Serve listens until the context is canceled, then shuts the server
// down gracefully.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen(a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return err
	}
	a.listener = listener
	a.logger.Info("status API listening", "address", a.config.Listen)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("error shutting down status API", tint.Err(shutdownErr))
		}
	}()

	return a.httpServer.Serve(listener)
}
