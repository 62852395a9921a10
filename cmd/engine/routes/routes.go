package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/castingclouds/circuit-breaker-sub001/cmd/engine/container"
	"github.com/castingclouds/circuit-breaker-sub001/cmd/engine/handlers"
	commonmiddleware "github.com/castingclouds/circuit-breaker-sub001/common/middleware"
)

// Register mounts the engine's operator-surface routes.
func Register(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	api := e.Group("/api/v1")
	api.Use(commonmiddleware.GlobalRateLimitMiddleware(c.RateLimit, 100))

	workflows := api.Group("/workflows")
	workflows.Use(commonmiddleware.WorkflowRateLimitMiddleware(c.RateLimit, 120))
	{
		workflows.POST("", h.PublishDefinition)
		workflows.GET("/:identifier", h.GetDefinition)
		workflows.POST("/:identifier/instances", h.CreateInstance)
		workflows.GET("/:identifier/tokens", h.ListTokens)
		workflows.GET("/:identifier/tokens/:token_id", h.GetToken)
		workflows.POST("/:identifier/tokens/:token_id/transitions", h.FireTransition)
		workflows.POST("/:identifier/events", h.IngestEvent)
		workflows.GET("/:identifier/dead-letters", h.ListDeadLetters)
	}
}
