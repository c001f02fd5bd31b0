package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"worktrack.app/relay/internal/http/handler"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/service"
)

type RouterConfig struct {
	Metrics bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(handler.RequireOrgID())
	{
		AutomationRuleRouter(v1.Group("/automation-rules"), handler.NewAutomationRuleHandler(services.AutomationRules()))
		SearchRouter(v1.Group("/search"), handler.NewSearchHandler(services.Search()))
	}
}
