// Command storefront is a terminal client for the food storefront API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/storefront/internal/app"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/pkg/logger"
)

const usage = `usage: storefront [-config file] <command> [flags] [args]

commands:
  login -email E -password P     sign in
  signup -email E -password P -first F -last L
  logout                         end the session
  whoami                         show the signed-in user
  products [-category C] [-keyword K] [-available] [-page N] [-take N]
  product <id>                   show one product
  cart [show|add|update|remove|clear|select] ...
  checkout [-payment M]          order the selected cart lines
  orders                         list your orders
  order <id>                     show one order and its delivery timeline
  oauth-url <provider> [-return URL]
  oauth <provider> -code C [-state S]  finish a provider sign in
  profile -first F -last L [-avatar URL]
  forgot -email E                request a password reset link
  reset -token T -password P -confirm P
  health                         check the API, storage and Kafka
  demo                           walk through a session against a built-in backend
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "storefront:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("storefront", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	configPath := global.String("config", os.Getenv("STOREFRONT_CONFIG"), "TOML config file")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}
	name, rest := global.Arg(0), global.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("storefront", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if name == "demo" {
		return runDemo(ctx, cfg, log, out)
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", name, errUsage)
	}
	return withApp(ctx, cfg, log, func(a *app.App) error {
		return cmd(ctx, a, rest, out)
	})
}

// withApp wires the client, restores the session and the cart, runs fn and
// releases everything afterwards.
func withApp(ctx context.Context, cfg *config.Config, log *slog.Logger, fn func(*app.App) error, opts ...app.Option) (err error) {
	opts = append([]app.Option{app.WithLoginHook(func(context.Context) {
		fmt.Fprintln(os.Stderr, "session expired, run `storefront login` again")
	})}, opts...)

	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	a.Start(ctx)
	return fn(a)
}
