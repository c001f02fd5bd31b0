package router

import (
	"github.com/gin-gonic/gin"

	"worktrack.app/relay/internal/http/handler"
)

func AutomationRuleRouter(rg *gin.RouterGroup, h *handler.AutomationRuleHandler) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/validate-condition", h.ValidateCondition)
	rg.GET("/condition-schema", h.ConditionSchema)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
