// tlscat - a command-line TLS client with SSH jump host support.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tlscat/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tlscat: %v\n", err)
		os.Exit(1)
	}
}
