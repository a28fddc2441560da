// Command recipes browses and saves toddler recipes against the configured
// backend, reading through the shared query cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-recipe-query/pkg/di"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeFn := newRootCmd(openFromEnv)
	root.Version = version
	err := root.ExecuteContext(ctx)
	if cerr := closeFn(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Error:", cerr)
		err = errors.Join(err, cerr)
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context) (*di.Container, func() error, error) {
	c, err := di.NewFromEnv(ctx, di.WithVersion(version))
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}
