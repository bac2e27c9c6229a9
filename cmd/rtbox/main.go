package main

import (
	"context"
	"os"
	"syscall"

	"github.com/rtbox/rtbox/internal/cli"
	"github.com/sirupsen/logrus"
)

func main() {
	// Setup logging format
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := cli.WithSignals(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Dependencies{})
	stop()
	os.Exit(code)
}
