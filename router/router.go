// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mitselek/esmuseum-map-app-sub006/controller"
	"github.com/mitselek/esmuseum-map-app-sub006/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	limiter middleware.Limiter,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	root := router.Group("/")
	root.Use(middleware.RateLimiter(limiter, rateLimitRequests, rateLimitDuration))

	controllers.Webhook.RegisterRoutes(root)

	return router
}
