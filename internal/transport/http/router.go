package http

import (
	"github.com/gin-gonic/gin"
	"github.com/marcusvale/billing-sync/internal/config"
	"go.uber.org/zap"
)

func NewRouter(runner Runner, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, runner)
	return r
}
