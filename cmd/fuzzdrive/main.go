// Package main provides fuzzdrive, a tool for inspecting and building the
// byte inputs that drive property tests.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/calvinalkan/fuzzdrive/internal/config"
	"github.com/calvinalkan/fuzzdrive/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, config.EnvMap(os.Environ()), sigCh)

	os.Exit(exitCode)
}
