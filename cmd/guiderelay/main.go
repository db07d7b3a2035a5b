package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if execErr := root.ExecuteContext(ctx); execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		stop()
		os.Exit(1)
	}
}
