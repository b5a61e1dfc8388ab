package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/utafrali/storefront/internal/api"
	"github.com/utafrali/storefront/internal/app"
	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

type command func(ctx context.Context, a *app.App, args []string, out io.Writer) error

var commands = map[string]command{
	"login":     cmdLogin,
	"signup":    cmdSignup,
	"logout":    cmdLogout,
	"whoami":    cmdWhoami,
	"products":  cmdProducts,
	"product":   cmdProduct,
	"cart":      cmdCart,
	"checkout":  cmdCheckout,
	"orders":    cmdOrders,
	"order":     cmdOrder,
	"oauth-url": cmdOAuthURL,
	"oauth":     cmdOAuthCallback,
	"profile":   cmdProfile,
	"forgot":    cmdForgotPassword,
	"reset":     cmdResetPassword,
	"health":    cmdHealth,
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, errUsage)
	}
	return nil
}

func cmdLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := parse(fs, args); err != nil {
		return err
	}
	user, err := a.Session.Login(ctx, api.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s <%s>\n", user.FullName(), user.Email)
	return nil
}

func cmdSignup(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("signup")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := parse(fs, args); err != nil {
		return err
	}
	user, err := a.Session.Signup(ctx, api.SignupRequest{
		Email:     *email,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "welcome, %s\n", user.FullName())
	return nil
}

func cmdLogout(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	if err := a.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app.App, _ []string, out io.Writer) error {
	user := a.Session.User()
	if user == nil {
		fmt.Fprintln(out, "not signed in")
		return nil
	}
	fmt.Fprintf(out, "%s <%s> (%s)\n", user.FullName(), user.Email, user.ID)
	return nil
}

func cmdProducts(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("products")
	category := fs.String("category", "", "category name")
	keyword := fs.String("keyword", "", "search term")
	available := fs.Bool("available", false, "only products in stock")
	number := fs.Int("page", 1, "page number")
	size := fs.Int("take", pagination.DefaultTake, "page size")
	if err := parse(fs, args); err != nil {
		return err
	}

	pg := pagination.New(*number, *size)
	skip, take := pg.Skip(), pg.Take()
	req := api.GetFoodsRequest{Skip: &skip, Take: &take}
	if *category != "" {
		req.Category = category
	}
	if *keyword != "" {
		req.Keyword = keyword
	}
	if *available {
		req.IsAvailable = available
	}
	page, err := a.API.Products.List(ctx, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, p := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, price(p.Price, p.DiscountPrice), stock(p))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d products, page %d of %d\n",
		len(page.Items), page.TotalCount, pg.Number, pg.Count(page.TotalCount))
	if pg.HasNext(page.TotalCount) {
		fmt.Fprintf(out, "next: -page %d\n", pg.Number+1)
	}
	return nil
}

func cmdProduct(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("product needs an id: %w", errUsage)
	}
	p, err := a.API.Products.Get(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n%s\nprice: %s\nstock: %d %s\n",
		p.Name, p.Category, p.Description, price(p.Price, p.DiscountPrice), p.StockQuantity, p.QuantityUnit)
	return nil
}

func cmdCart(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	var err error
	switch sub {
	case "show":
	case "add":
		err = cartAdd(ctx, a, args)
	case "update":
		var id string
		var qty int
		if id, qty, err = idAndQuantity(args); err == nil {
			err = a.Cart.UpdateItemQuantity(ctx, id, qty)
		}
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("cart remove needs an id: %w", errUsage)
		}
		err = a.Cart.RemoveItem(ctx, args[0])
	case "clear":
		err = a.Cart.ClearCart(ctx)
	case "select":
		err = cartSelect(a, args)
	default:
		return fmt.Errorf("unknown cart command %q: %w", sub, errUsage)
	}
	if err != nil {
		return err
	}
	return printCart(out, a.Cart)
}

func cartAdd(ctx context.Context, a *app.App, args []string) error {
	id, qty := "", 1
	switch len(args) {
	case 1:
		id = args[0]
	case 2:
		var err error
		if id, qty, err = idAndQuantity(args); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cart add needs an id and an optional quantity: %w", errUsage)
	}
	p, err := a.API.Products.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.Cart.AddItem(ctx, p.Summary().LineItem(), qty)
}

func cartSelect(a *app.App, args []string) error {
	fs := newFlags("cart select")
	off := fs.Bool("off", false, "deselect instead")
	all := fs.Bool("all", false, "apply to every line")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *all {
		a.Cart.SetAllSelected(!*off)
		return nil
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("cart select needs ids or -all: %w", errUsage)
	}
	for _, id := range fs.Args() {
		if err := a.Cart.SetItemSelection(id, !*off); err != nil {
			return err
		}
	}
	return nil
}

func idAndQuantity(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("expected <id> <quantity>: %w", errUsage)
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("quantity %q is not a number: %w", args[1], errUsage)
	}
	return args[0], qty, nil
}

func printCart(out io.Writer, c *cart.Engine) error {
	items := c.Items()
	if cart.IsEmpty(items) {
		fmt.Fprintln(out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEL\tID\tNAME\tQTY\tPRICE\tTOTAL")
	for _, it := range items {
		mark := " "
		if it.IsSelected {
			mark = "x"
		}
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%d\t%s\t%.2f\n",
			mark, it.ID, it.Name, it.Quantity, price(it.UnitPrice, it.DiscountPrice), cart.LineTotal(it))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d items, selected subtotal %.2f\n", cart.TotalQuantity(items), cart.SelectedSubtotal(items))
	return nil
}

func cmdCheckout(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("checkout")
	method := fs.String("payment", string(domain.PaymentCashOnDelivery), "payment method")
	if err := parse(fs, args); err != nil {
		return err
	}
	sum := a.Checkout.Summary()
	fmt.Fprintf(out, "ordering %d items for %.2f\n", sum.Quantity, sum.Subtotal)
	receipt, err := a.Checkout.PlaceOrder(ctx, domain.PaymentMethod(*method))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s placed: %.2f, %s, %s\n",
		receipt.SlugID, receipt.TotalAmount, domain.PaymentMethod(receipt.PaymentMethod).Label(), receipt.DeliveryStatus.Label())
	return nil
}

func cmdOrders(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	orders, err := a.Checkout.Orders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(out, "no orders yet")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREF\tPLACED\tTOTAL\tSTATUS")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
			o.ID, o.SlugID, o.CreatedAt.Format("2006-01-02 15:04"), o.TotalAmount, o.DeliveryStatus.Label())
	}
	return tw.Flush()
}

func cmdOrder(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("order needs an id: %w", errUsage)
	}
	o, err := a.Checkout.Order(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s, %.2f, %s\n", o.SlugID, o.TotalAmount, domain.PaymentMethod(o.PaymentMethod).Label())
	for _, it := range o.Items {
		fmt.Fprintf(out, "  %d x %s  %.2f\n", it.Quantity, it.FoodName, it.TotalPrice)
	}
	for _, step := range checkout.Timeline(*o) {
		mark := "-"
		switch {
		case step.Current:
			mark = ">"
		case step.Reached:
			mark = "x"
		}
		when := ""
		if step.CompletedAt != nil {
			when = step.CompletedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "  %s %-14s %s\n", mark, step.Label, when)
	}
	return nil
}

func cmdOAuthURL(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("oauth-url needs a provider: %w", errUsage)
	}
	fs := newFlags("oauth-url")
	returnURL := fs.String("return", "", "where to continue after sign in")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	url, err := a.Session.BeginOAuth(ctx, strings.ToLower(args[0]), *returnURL)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, url)
	return nil
}

func cmdOAuthCallback(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("oauth needs a provider: %w", errUsage)
	}
	fs := newFlags("oauth")
	code := fs.String("code", "", "authorization code from the provider")
	state := fs.String("state", "", "state echoed by the provider")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	user, returnURL, err := a.Session.CompleteOAuth(ctx, strings.ToLower(args[0]), *code, *state)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s <%s>\n", user.FullName(), user.Email)
	if returnURL != "" {
		fmt.Fprintf(out, "continue at %s\n", returnURL)
	}
	return nil
}

func cmdProfile(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("profile")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	avatar := fs.String("avatar", "", "avatar URL")
	if err := parse(fs, args); err != nil {
		return err
	}
	req := api.UpdateProfileRequest{FirstName: *first, LastName: *last}
	if *avatar != "" {
		req.AvatarURL = avatar
	}
	user, err := a.Session.UpdateProfile(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "profile updated: %s\n", user.FullName())
	return nil
}

func cmdForgotPassword(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("forgot")
	email := fs.String("email", "", "account email")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.Session.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintf(out, "if %s has an account, a reset link is on its way\n", *email)
	return nil
}

func cmdResetPassword(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("reset")
	token := fs.String("token", "", "token from the reset link")
	password := fs.String("password", "", "new password")
	confirm := fs.String("confirm", "", "new password again")
	if err := parse(fs, args); err != nil {
		return err
	}
	err := a.Session.ResetPassword(ctx, api.ResetPasswordRequest{
		Token:           *token,
		NewPassword:     *password,
		ConfirmPassword: *confirm,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "password changed, sign in with the new one")
	return nil
}

func cmdHealth(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	res := a.Health(ctx)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func price(unit float64, discount *float64) string {
	if discount != nil && *discount < unit {
		return fmt.Sprintf("%.2f (was %.2f)", *discount, unit)
	}
	return fmt.Sprintf("%.2f", unit)
}

func stock(p domain.Product) string {
	if !p.IsAvailable || p.StockQuantity <= 0 {
		return "sold out"
	}
	return strconv.Itoa(p.StockQuantity)
}
