package api

import (
	"errors"
	"net/http"

	"go-chat-realtime/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewEngine builds the gin engine with every route registered.
func NewEngine(cfg *config.Config, router *Router) *gin.Engine {
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.IsDevelopment() {
		r.Use(gin.Logger())
	}

	router.RegisterRoutes(r)
	return r
}

// Serve runs srv until it is shut down, with TLS when configured.
// http.ErrServerClosed is not reported.
func Serve(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http server listening",
		zap.String("addr", srv.Addr),
		zap.Bool("tls", cfg.TLSEnabled()),
	)

	var err error
	if cfg.TLSEnabled() {
		err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
