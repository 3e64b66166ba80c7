package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	instancesrender "github.com/agvtools/agv-instances-cli/internal/adapters/render/instances"
	"github.com/agvtools/agv-instances-cli/internal/domain"
)

func newInstanceCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage isolated application instances",
	}

	cmd.AddCommand(
		newInstanceListCmd(app),
		newInstanceCreateCmd(app),
		newInstanceRenameCmd(app),
		newInstanceDeleteCmd(app),
		newInstanceEnsureDefaultCmd(app),
		newInstanceShowCmd(app),
		newInstanceStartCmd(app),
		newInstanceStopCmd(app),
		newInstanceRestartCmd(app),
		newInstanceStatusCmd(app),
		newInstanceRunningCmd(app),
	)

	return cmd
}

func newInstanceListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			overview, err := buildOverview(cmd, app, nil)
			if err != nil {
				return err
			}

			output, err := app.renderOverview(overview, instancesrender.RenderOptions{Now: app.now()})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}
}

func buildOverview(cmd *cobra.Command, app *app, recommendations []domain.Recommendation) (instancesrender.Overview, error) {
	instances, err := app.registry.List(cmd.Context())
	if err != nil {
		return instancesrender.Overview{}, err
	}

	rows := make([]instancesrender.Row, 0, len(instances))
	for _, instance := range instances {
		running, err := app.lifecycle.Status(cmd.Context(), instance.ID)
		if err != nil {
			return instancesrender.Overview{}, err
		}

		rows = append(rows, instancesrender.Row{
			Summary:          domain.SummaryOf(instance),
			CurrentAccountID: instance.CurrentAccountID,
			Running:          running,
		})
	}

	return instancesrender.Overview{
		Rows:            rows,
		Recommendations: recommendations,
		Accounts:        accountIndex(cmd, app),
	}, nil
}

// accountIndex is display sugar only; a missing account store just means IDs
// are shown instead of emails.
func accountIndex(cmd *cobra.Command, app *app) map[domain.AccountID]domain.Account {
	accounts, err := app.directory.List(cmd.Context())
	if err != nil {
		return nil
	}

	index := make(map[domain.AccountID]domain.Account, len(accounts))
	for _, account := range accounts {
		index[account.ID] = account
	}

	return index
}

func newInstanceCreateCmd(app *app) *cobra.Command {
	var (
		name      string
		dir       string
		extraArgs []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an instance rooted at a new user data dir",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := app.registry.Create(cmd.Context(), name, dir, extraArgs)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created instance %s (%s)\n", instance.Name, instance.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "instance name")
	cmd.Flags().StringVar(&dir, "dir", "", "absolute user data dir for the instance")
	cmd.Flags().StringArrayVar(&extraArgs, "arg", nil, "extra launch argument (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func newInstanceRenameCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <instance-id> <new-name>",
		Short: "Rename an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := app.registry.Rename(cmd.Context(), domain.InstanceID(args[0]), args[1])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "renamed instance %s to %s\n", instance.ID, instance.Name)
			return err
		},
	}
}

func newInstanceDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Delete an instance (the default instance cannot be deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.registry.Delete(cmd.Context(), domain.InstanceID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted instance %s\n", args[0])
			return err
		},
	}
}

func newInstanceEnsureDefaultCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-default",
		Short: "Create the default instance if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := app.registry.EnsureDefault(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "default instance: %s (%s)\n", instance.Name, instance.ID)
			return err
		},
	}
}

func newInstanceShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show one instance in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := app.registry.Get(cmd.Context(), domain.InstanceID(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id:\t%s\n", instance.ID)
			_, _ = fmt.Fprintf(out, "name:\t%s\n", instance.Name)
			_, _ = fmt.Fprintf(out, "dir:\t%s\n", instance.UserDataDir)
			_, _ = fmt.Fprintf(out, "default:\t%t\n", instance.IsDefault)
			if instance.Executable != "" {
				_, _ = fmt.Fprintf(out, "executable:\t%s\n", instance.Executable)
			}
			if len(instance.ExtraArgs) > 0 {
				_, _ = fmt.Fprintf(out, "extra args:\t%v\n", instance.ExtraArgs)
			}
			_, _ = fmt.Fprintf(out, "accounts:\t%d\n", len(instance.AccountIDs))
			for _, accountID := range instance.AccountIDs {
				marker := ""
				if accountID == instance.CurrentAccountID {
					marker = " (current)"
				}
				_, _ = fmt.Fprintf(out, "  - %s%s\n", accountID, marker)
			}

			return nil
		},
	}
}

func newInstanceStartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <instance-id>",
		Short: "Start the instance process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.lifecycle.Start(cmd.Context(), domain.InstanceID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "started instance %s\n", args[0])
			return err
		},
	}
}

func newInstanceStopCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <instance-id>",
		Short: "Stop the instance process (no-op when already stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.lifecycle.Stop(cmd.Context(), domain.InstanceID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stopped instance %s\n", args[0])
			return err
		},
	}
}

func newInstanceRestartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <instance-id>",
		Short: "Restart the instance with its recorded launch arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.lifecycle.Restart(cmd.Context(), domain.InstanceID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "restarted instance %s\n", args[0])
			return err
		},
	}
}

func newInstanceStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Report whether the instance process is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			running, err := app.lifecycle.Status(cmd.Context(), domain.InstanceID(args[0]))
			if err != nil {
				return err
			}

			state := "stopped"
			if running {
				state = "running"
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), state)
			return err
		},
	}
}

func newInstanceRunningCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List instances with a live process",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, err := app.lifecycle.RunningInstances(cmd.Context())
			if err != nil {
				return err
			}

			for _, instance := range running {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", instance.ID, instance.Name)
			}

			return nil
		},
	}
}
