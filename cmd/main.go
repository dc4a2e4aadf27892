package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/victornm/typerace/internal/config"
	"github.com/victornm/typerace/internal/leaderboard"
	"github.com/victornm/typerace/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "typerace",
		Short:        "Live typing test server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "config file (defaults to $CONFIG_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the WebSocket, HTTP and gRPC servers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		newLeaderboardCmd(&configPath),
		&cobra.Command{
			Use:   "config",
			Short: "Print the resolved configuration as YAML",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := loadConfig(configPath)
				if err != nil {
					return err
				}

				b, err := config.Dump(c)
				if err != nil {
					return err
				}

				_, err = cmd.OutOrStdout().Write(b)
				return err
			},
		},
	)

	return root
}

func newLeaderboardCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if limit <= 0 {
				limit = c.Leaderboard.Limit
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			st, err := server.OpenStore(ctx, c.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			l, err := leaderboard.NewService(leaderboard.Config{Store: st, Limit: limit}).GetLeaderboard(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tUSERNAME\tMAX WPM\tAVG ACCURACY\tTESTS")
			for i, e := range l.Entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\t%d\n", i+1, e.Username, e.MaxWPM, e.AvgAccuracy, e.TestsTaken)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of users to print (defaults to leaderboard.limit)")

	return cmd
}

func serve(ctx context.Context, configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	s, err := server.Init(c)
	if err != nil {
		return fmt.Errorf("init server failed: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Start()
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	s.Shutdown()
	return err
}

func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
