package main

import (
	"os"
	"os/signal"
	"syscall"

	"airquality/internal/bootstrap"
)

func main() {
	c := bootstrap.NewContainer()
	c.MustInit()

	if err := c.Start(); err != nil {
		c.Log.Errorf("Failed to start: %v", err)
		c.Shutdown()
		os.Exit(1)
	}

	waitForShutdown(c)
}

// waitForShutdown blocks until a signal arrives or a component cancels the app context
func waitForShutdown(c *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infow("Shutting down...", "signal", sig.String())
	case <-c.Done():
		c.Log.Warn("Application context cancelled, shutting down...")
	}

	c.Shutdown()
}
