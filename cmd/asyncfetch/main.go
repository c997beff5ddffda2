package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vertextoedge/asyncfetch/internal/app"
)

func main() {
	// Cancel in-flight transfers on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := app.New(os.Stdout, os.Stderr).Run(ctx, os.Args)
	code := app.ExitCode(err)
	if err != nil && err.Error() != "" {
		fmt.Fprintf(os.Stderr, "asyncfetch: %v\n", err)
	}

	stop()
	os.Exit(code)
}
