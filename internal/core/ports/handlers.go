package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	SetupRoutes(router *gin.Engine)
}
