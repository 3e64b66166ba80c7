package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agvtools/agv-instances-cli/internal/application"
	"github.com/agvtools/agv-instances-cli/internal/domain"
)

func newWatchCmd(app *app) *cobra.Command {
	var (
		interval    time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch instance processes and print state transitions",
		Long:  "Polls the process table on a fixed cadence and prints a line whenever an instance starts or stops. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("%w: poll interval must be positive, got %s", domain.ErrValidation, interval)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			poller := application.NewStatusPoller(app.repo, app.proc, interval, concurrency)
			poller.Start(ctx)
			defer poller.Stop()

			names := map[domain.InstanceID]string{}
			previous := map[domain.InstanceID]bool{}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				if instances, err := app.registry.List(ctx); err == nil {
					for _, instance := range instances {
						names[instance.ID] = instance.Name
					}
				}

				current := poller.Running()
				for id, running := range current {
					if previous[id] == running {
						continue
					}

					state := "stopped"
					if running {
						state = "running"
					}
					name := names[id]
					if name == "" {
						name = string(id)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", time.Now().Format(time.TimeOnly), name, state)
				}
				previous = current
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", app.pollInterval, "poll interval")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "max concurrent status queries")

	return cmd
}
