package router

import "github.com/gin-gonic/gin"

// Module registers a group of related routes.
type Module interface {
	Register(rg *gin.RouterGroup)
}
