package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/castingclouds/circuit-breaker-sub001/cmd/engine/container"
	"github.com/castingclouds/circuit-breaker-sub001/cmd/engine/routes"
	"github.com/castingclouds/circuit-breaker-sub001/common/bootstrap"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	c, err := container.New(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize engine container: %v\n", err)
		os.Exit(1)
	}

	supervisorCtx, cancelSupervisor := context.WithCancel(ctx)
	defer cancelSupervisor()
	go func() {
		if err := c.Supervisor.Run(supervisorCtx); err != nil && supervisorCtx.Err() == nil {
			components.Logger.Error("hanging-transition detector exited", "error", err)
		}
	}()

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, c)
	routes.Register(e, c)

	startServer(e, components)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ctx echo.Context) error {
		if err := c.Components.Health(ctx.Request().Context()); err != nil {
			return ctx.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return ctx.JSON(200, map[string]string{"status": "ok", "service": "engine"})
	})
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("starting engine", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
