package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/NasaVasa/pricewatch/internal/config"
	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/NasaVasa/pricewatch/internal/infra/log"
	"github.com/NasaVasa/pricewatch/internal/offline"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// clientEnv is the offline client assembled from ClientConfig.
type clientEnv struct {
	cfg    config.ClientConfig
	store  *offline.SQLiteStore
	remote *offline.HTTPRemote
	queue  *offline.Queue
	client *offline.Client
	logger *zap.Logger
}

func openClientEnv(ctx context.Context) (*clientEnv, error) {
	cfg, err := config.LoadClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".pricewatch")
	}

	logger, err := log.NewLogger(cfg.LogLevel, "pricewatch-client")
	if err != nil {
		return nil, err
	}

	store, err := offline.OpenStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening queue store: %w", err)
	}

	remote := offline.NewHTTPRemote(cfg.APIURL, cfg.RequestTimeout)
	queue := offline.NewQueue(store, remote, cfg.QueueMaxRetries, logger)
	if err := queue.Open(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &clientEnv{
		cfg:    cfg,
		store:  store,
		remote: remote,
		queue:  queue,
		client: offline.NewClient(remote, queue),
		logger: logger,
	}, nil
}

func (e *clientEnv) Close() {
	e.store.Close()
	_ = e.logger.Sync()
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, env *clientEnv) error) error {
	env, err := openClientEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(cmd.Context(), env)
}

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Offline-tolerant client; operations that cannot reach the server are queued",
	}
	cmd.AddCommand(clientStatusCmd())
	cmd.AddCommand(clientSyncCmd())
	cmd.AddCommand(clientAlertsCmd())
	cmd.AddCommand(clientWatchCmd())
	cmd.AddCommand(clientLookupCmd())
	cmd.AddCommand(clientAckCmd())
	cmd.AddCommand(clientPriceCmd())
	cmd.AddCommand(clientReviveCmd())
	return cmd
}

func clientStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List queued operations with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				printItems(cmd.OutOrStdout(), env.queue.Items())
				return nil
			})
		},
	}
}

func clientSyncCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				if watch {
					return env.queue.Run(ctx, env.cfg.QueueInterval, env.remote)
				}
				if !env.remote.Online(ctx) {
					fmt.Fprintln(cmd.OutOrStdout(), "server unreachable, nothing replayed")
					return nil
				}
				result, err := env.queue.ProcessPending(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed=%d failed=%d dead=%d\n", result.Replayed, result.Failed, result.Dead)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep replaying every CLIENT_QUEUE_INTERVAL while online")
	return cmd
}

func clientAlertsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent alerts from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				alerts, err := env.remote.ListAlerts(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSIGNIFICANCE\tPRODUCT\tCOMPETITOR\tOLD\tNEW\tCHANGE\tREAD")
				for _, alert := range alerts {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%+.2f%%\t%t\n",
						alert.ID, alert.Significance, alert.ProductName, alert.CompetitorName,
						alert.OldPrice.StringFixed(2), alert.NewPrice.StringFixed(2), alert.PercentageChange, alert.Read)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of alerts")
	return cmd
}

func clientWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print live alerts and replay the queue in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				feed, err := offline.NewLiveFeed(env.cfg.APIURL, env.cfg.LiveReadTimeout, env.cfg.LiveRetry, env.logger)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return env.queue.Run(gctx, env.cfg.QueueInterval, env.remote)
				})
				g.Go(func() error {
					return feed.Watch(gctx, func(alert domain.Alert) {
						fmt.Fprintf(out, "#%d [%s] %s\n", alert.ID, alert.Significance, alert.Reason)
					})
				})
				return g.Wait()
			})
		},
	}
}

func clientLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <barcode>",
		Short: "Look up a product by barcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				product, err := env.client.LookupProduct(ctx, args[0])
				if err != nil {
					return reportQueued(cmd.OutOrStdout(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s (%s) %s\n", product.ID, product.Name, product.SKU, product.Category)
				return nil
			})
		},
	}
}

func clientAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Mark an alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alertID, err := parseUintArg(args[0], "alert id")
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				if err := env.client.MarkAlertRead(ctx, alertID); err != nil {
					return reportQueued(cmd.OutOrStdout(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "alert %d marked read\n", alertID)
				return nil
			})
		},
	}
}

func clientPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price <product-id> <price>",
		Short: "Update a product's list price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseUintArg(args[0], "product id")
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(args[1])
			if err != nil || !price.IsPositive() {
				return fmt.Errorf("invalid price %q", args[1])
			}
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				if err := env.client.UpdatePrice(ctx, productID, price); err != nil {
					return reportQueued(cmd.OutOrStdout(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d price set to %s\n", productID, price.StringFixed(2))
				return nil
			})
		},
	}
}

func clientReviveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revive <item-id>",
		Short: "Return a dead or failed queued operation to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, env *clientEnv) error {
				item, err := env.queue.Revive(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", item.ID, item.Status)
				return nil
			})
		},
	}
}

// reportQueued turns a queued operation into a notice; other errors pass through.
func reportQueued(out io.Writer, err error) error {
	if errors.Is(err, offline.ErrQueued) {
		fmt.Fprintln(out, "server unreachable, operation queued for replay")
		return nil
	}
	return err
}

func parseUintArg(value, name string) (uint, error) {
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return uint(parsed), nil
}

func printItems(out io.Writer, items []offline.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "queue is empty")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tRETRIES\tENQUEUED\tLAST ERROR")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.ID, item.Kind, item.Status, item.RetryCount,
			item.EnqueuedAt.Local().Format("2006-01-02 15:04:05"), item.LastError)
	}
	w.Flush()
}
