package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/castingclouds/circuit-breaker-sub001/common/bootstrap"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/streaming"
)

func main() {
	ctx := context.Background()

	// Fan-out has no use for a database; it only bridges Redis pubsub
	// into in-process sessions.
	components, err := bootstrap.Setup(ctx, "streamgate", bootstrap.WithoutDB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap streamgate: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	hub := streaming.NewHub(components.Config.Streaming.MaxBufferedEvents)
	feed := streaming.NewRedisFeed(components.Redis, hub, components.Logger)

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	go func() {
		if err := feed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			components.Logger.Error("streaming feed exited", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "streamgate"})
	})

	streaming.NewServer(hub).Register(e)

	port := components.Config.Service.Port
	components.Logger.Info("starting streamgate", "port", port)
	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
