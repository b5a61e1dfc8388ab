package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/utafrali/storefront/internal/app"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/fakeapi"
	"github.com/utafrali/storefront/internal/storage/memory"
)

const (
	demoEmail    = "demo@storefront.example"
	demoPassword = "Demo1234!"
)

// runDemo drives a full shopping session against an in-process backend:
// a guest cart, signup with migration, a forced token refresh, checkout and
// delivery tracking.
func runDemo(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	scfg := fakeapi.DefaultConfig()
	scfg.Logger = log
	srv := fakeapi.New(scfg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	demo := *cfg
	demo.APIBaseURL = ts.URL
	demo.KafkaBrokers = nil

	return withApp(ctx, &demo, log, func(a *app.App) error {
		step := func(title string, cmd command, args ...string) error {
			fmt.Fprintf(out, "\n$ storefront %s\n", title)
			return cmd(ctx, a, args, out)
		}

		if err := step("products -available", cmdProducts, "-available"); err != nil {
			return err
		}
		if err := step("cart add margherita-pizza 2", cmdCart, "add", "margherita-pizza", "2"); err != nil {
			return err
		}
		if err := step("cart add lemonade", cmdCart, "add", "lemonade"); err != nil {
			return err
		}
		if err := step("signup", cmdSignup,
			"-email", demoEmail, "-password", demoPassword, "-first", "Demo", "-last", "Shopper"); err != nil {
			return err
		}
		if err := step("cart", cmdCart); err != nil {
			return err
		}

		srv.ExpireAccessTokens()
		if err := step("cart select -off lemonade", cmdCart, "select", "-off", "lemonade"); err != nil {
			return err
		}
		if err := step("whoami", cmdWhoami); err != nil {
			return err
		}
		if err := step("checkout", cmdCheckout); err != nil {
			return err
		}
		fmt.Fprintf(out, "(token refreshes: %d)\n", srv.Hits(http.MethodPost, "/auth/refresh"))

		orders, err := a.Checkout.Orders(ctx)
		if err != nil {
			return err
		}
		if len(orders) > 0 {
			if _, err := srv.AdvanceDelivery(orders[0].ID); err != nil {
				return err
			}
			if err := step("order "+orders[0].ID, cmdOrder, orders[0].ID); err != nil {
				return err
			}
		}

		if err := step("cart", cmdCart); err != nil {
			return err
		}
		return step("logout", cmdLogout)
	}, app.WithStore(memory.New()))
}
