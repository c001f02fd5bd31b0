package router

import (
	"github.com/gin-gonic/gin"

	"worktrack.app/relay/internal/http/handler"
)

func SearchRouter(rg *gin.RouterGroup, h *handler.SearchHandler) {
	rg.POST("", h.Search)
}
