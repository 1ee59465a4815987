package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/skedops/kubexec/executor"
)

var syncInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the executor loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clientset, err := newClientset(cfg)
		if err != nil {
			return err
		}

		ex, err := executor.New(cfg, clientset, executor.NewMemoryStore())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := ex.Start(ctx); err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ticker := time.NewTicker(syncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					ex.Sync(ctx)
					for key, state := range ex.Events() {
						klog.Infof("task %s finished with state %s", key, state)
					}
				}
			}
		})

		err = g.Wait()
		ex.End(context.Background())
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().DurationVar(&syncInterval, "sync-interval", 5*time.Second, "interval between executor sync ticks")
}
