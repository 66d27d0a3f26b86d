package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"greendesk/internal/app"
	"greendesk/internal/config"
	"greendesk/internal/db"
	"greendesk/internal/domain"
	"greendesk/internal/migrate"
	"greendesk/internal/money"
	"greendesk/internal/server"
	"greendesk/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "gd",
	Short: "Greendesk CLI",
	Long: `Greendesk is the admin console for a plant-auction marketplace.
It aggregates pending work (payments to confirm, orders to ship, auctions to
settle) into one prioritized queue, moderates customer reviews with a
confirmation-gated delete, and composes printable receipts into a local
archive. The marketplace backend stays the system of record; Greendesk only
ever deletes reviews there.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GREENDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("operator", "local-admin", "operator identifier recorded in the audit log")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "skip confirmation prompts")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("operator", rootCmd.PersistentFlags().Lookup("operator"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
}

func registerCommands() {
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(reviewsCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the aggregated pending-task queue",
		Long:  "Fetches pending payments, unshipped orders, and unsettled auctions concurrently and prints one prioritized queue. A domain whose fetch fails is reported and simply absent this cycle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := a.Dashboard(ctx)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				for _, d := range res.FailedDomains {
					fmt.Fprintf(os.Stderr, "warning: %s source unavailable this cycle\n", d)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Prio", "Domain", "ID", "Summary", "Created"})
				for _, t := range res.Tasks {
					tw.AppendRow(table.Row{t.Priority, t.Domain, t.ID, t.Summary, t.CreatedAt})
				}
				tw.Render()
				fmt.Printf("Pending: %d payment, %d shipment, %d auction\n",
					res.Counts["payment"], res.Counts["shipment"], res.Counts["auction"])
				return nil
			})
		},
	}
	return cmd
}

func reviewsCmd() *cobra.Command {
	reviews := &cobra.Command{Use: "reviews", Short: "Moderate customer reviews"}
	reviews.AddCommand(reviewsListCmd())
	reviews.AddCommand(reviewsDeleteCmd())
	return reviews
}

func reviewsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews pending moderation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Moderation.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Order", "Stars", "Text", "Created"})
				for _, rv := range items {
					tw.AppendRow(table.Row{rv.ID, rv.OrderID, rv.Stars, rv.Text, rv.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reviewsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <review-id>",
		Short: "Delete a review (asks for confirmation)",
		Long:  "Deletion is permanent on the marketplace side. The command refreshes the review list, asks for confirmation unless --yes is given, and only then issues the destructive call.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Moderation.List(ctx); err != nil {
					return fmt.Errorf("refresh reviews: %w", err)
				}
				token, err := a.Moderation.RequestDelete(id)
				if err != nil {
					return err
				}
				if !viper.GetBool("yes") {
					ok, err := confirm(fmt.Sprintf("Permanently delete review %s?", id))
					if err != nil {
						return err
					}
					if !ok {
						a.Moderation.CancelDelete(token)
						fmt.Println("Canceled.")
						return nil
					}
				}
				deleted, err := a.DeleteReview(ctx, token, viper.GetString("operator"))
				if err != nil {
					return err
				}
				fmt.Printf("Deleted review %s\n", deleted)
				return nil
			})
		},
	}
	return cmd
}

func receiptCmd() *cobra.Command {
	receipt := &cobra.Command{Use: "receipt", Short: "Compose and browse receipts"}
	receipt.AddCommand(receiptComposeCmd())
	receipt.AddCommand(receiptListCmd())
	receipt.AddCommand(receiptShowCmd())
	return receipt
}

func receiptComposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose <order-id>",
		Short: "Compose a receipt from an order and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := strings.TrimSpace(args[0])
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rc, err := a.ComposeReceipt(ctx, orderID, viper.GetString("operator"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rc)
				}
				printReceipt(rc)
				return nil
			})
		},
	}
	return cmd
}

func receiptListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived receipts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				receipts, err := a.Store.ListReceipts(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(receipts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Receipt", "Date", "Customer", "Total", "Payment"})
				for _, rc := range receipts {
					tw.AppendRow(table.Row{rc.ReceiptNo, rc.Date, rc.Customer.Name, money.FormatAmount(rc.Total), rc.PaymentMethod})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max receipts to list")
	return cmd
}

func receiptShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <receipt-no>",
		Short: "Show an archived receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rc, err := a.Store.GetReceipt(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rc)
				}
				printReceipt(rc)
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	apikey.AddCommand(apikeyCreateCmd())
	apikey.AddCommand(apikeyListCmd())
	apikey.AddCommand(apikeyDeleteCmd())
	return apikey
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		Long:  "Prints the key once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				key := "gdk_" + hex.EncodeToString(raw)
				rec := domain.APIKey{
					ID:       uuid.NewString(),
					Operator: viper.GetString("operator"),
					Name:     name,
					KeyHash:  store.HashAPIKey(key),
				}
				if err := a.Store.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": rec.ID, "key": key})
				}
				fmt.Printf("Created API key %s\n%s\n", rec.ID, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Store.ListAPIKeys(ctx, operator)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Operator", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Operator, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator-filter", "", "only keys for this operator")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Store.DeleteAPIKey(ctx, strings.TrimSpace(args[0]))
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default greendesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:9000", "marketplace backend base URL")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the audit log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Store.LatestAuditEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Operator"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.Operator})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var insecure bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:                   os.Getenv("GREENDESK_JWT_SECRET"),
					AllowInsecureOperatorHeader: insecure,
				}
				if authCfg.JWTSecret == "" && !insecure {
					return fmt.Errorf("GREENDESK_JWT_SECRET is required for bearer auth (or pass --insecure for local use)")
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Greendesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "accept the X-Operator-Id header without credentials")
	return cmd
}

// --- helpers ---

// withApp opens the workspace, loads and validates config, and builds the
// full app with the marketplace client wired up.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, app.New(conn, cfg))
}

// withStore is withApp for commands that only touch the local archive and do
// not need a marketplace config.
func withStore(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default("http://localhost:9000")
	}
	return fn(ctx, app.New(conn, cfg))
}

func confirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printReceipt(rc domain.Receipt) {
	fmt.Printf("Receipt %s  (%s)\n", rc.ReceiptNo, rc.Date)
	fmt.Printf("Customer: %s", rc.Customer.Name)
	if rc.Customer.Phone != "" {
		fmt.Printf("  %s", rc.Customer.Phone)
	}
	fmt.Println()
	if rc.Customer.Address != "" {
		fmt.Printf("Address:  %s\n", rc.Customer.Address)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Item", "Qty", "Price", "Line total"})
	for _, it := range rc.Items {
		tw.AppendRow(table.Row{it.Name, it.Qty, money.FormatAmount(it.Price), money.FormatAmount(money.LineTotal(it.Qty, it.Price))})
	}
	tw.AppendFooter(table.Row{"", "", "Total", money.FormatAmount(rc.Total)})
	tw.Render()
	if rc.PaymentMethod != "" {
		fmt.Printf("Paid by %s\n", rc.PaymentMethod)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
