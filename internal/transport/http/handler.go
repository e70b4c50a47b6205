package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcusvale/billing-sync/internal/syncer"
)

// Runner triggers a sync run.
type Runner interface {
	Run(ctx context.Context, entities []string) syncer.RunReport
}

func RegisterHandlers(r *gin.Engine, runner Runner) {
	v1 := r.Group("/v1")
	{
		v1.POST("/sync", syncHandler(runner))
	}
}

type syncReq struct {
	Entities []string `json:"entities"`
}

func syncHandler(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncReq
		// body is optional; absent or empty means the default entity set
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		report := runner.Run(c, req.Entities)
		status := http.StatusOK
		if !report.Success {
			status = http.StatusInternalServerError
		}
		c.JSON(status, report)
	}
}
