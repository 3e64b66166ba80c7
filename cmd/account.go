package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage account-to-instance bindings",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountBindCmd(app),
		newAccountUnbindCmd(app),
		newAccountCurrentCmd(app),
		newAccountSwitchCmd(app),
		newAccountMigrateCmd(app),
		newAccountPruneCmd(app),
		newAccountInstancesCmd(app),
	)

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known accounts and their quota tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.directory.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, account := range accounts {
				tier := "-"
				if account.Quota != nil && account.Quota.Tier != "" {
					tier = account.Quota.Tier
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", account.ID, account.Email, tier)
			}

			return nil
		},
	}
}

func newAccountBindCmd(app *app) *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "bind <account-id>",
		Short: "Bind an account to an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.binding.Bind(cmd.Context(), domain.AccountID(args[0]), domain.InstanceID(instanceID)); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "bound account %s to instance %s\n", args[0], instanceID)
			return err
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "target instance id")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}

func newAccountUnbindCmd(app *app) *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "unbind <account-id>",
		Short: "Unbind an account from an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.binding.Unbind(cmd.Context(), domain.AccountID(args[0]), domain.InstanceID(instanceID)); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "unbound account %s from instance %s\n", args[0], instanceID)
			return err
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "target instance id")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}

func newAccountCurrentCmd(app *app) *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "current <instance-id>",
		Short: "Show or set the instance's current account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instanceID := domain.InstanceID(args[0])

			if set != "" {
				if err := app.binding.SetCurrentAccount(cmd.Context(), instanceID, domain.AccountID(set)); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "current account of instance %s is now %s\n", instanceID, set)
				return err
			}

			instance, err := app.registry.Get(cmd.Context(), instanceID)
			if err != nil {
				return err
			}

			if instance.CurrentAccountID == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no current account")
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), instance.CurrentAccountID)
			return err
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "account id to make current (must already be bound)")

	return cmd
}

func newAccountSwitchCmd(app *app) *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "switch <account-id>",
		Short: "Bind the account if needed and make it current",
		Long:  "Binds the account to the instance when it is not yet bound, then makes it the current account. On a running instance the live in-process switch must succeed before anything is recorded.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.binding.SwitchAccount(cmd.Context(), domain.InstanceID(instanceID), domain.AccountID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "switched instance %s to account %s\n", instanceID, args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "target instance id")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}

func newAccountMigrateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bind accounts that belong to no instance to the default instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrated, err := app.binding.MigrateLegacyAccounts(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %d account(s)\n", migrated)
			return err
		},
	}
}

func newAccountPruneCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop bindings for accounts that no longer exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pruned, err := app.binding.PruneStaleBindings(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d binding(s)\n", pruned)
			return err
		},
	}
}

func newAccountInstancesCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "instances <account-id>",
		Short: "List the instances an account is bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := app.binding.InstancesForAccount(cmd.Context(), domain.AccountID(args[0]))
			if err != nil {
				return err
			}

			for _, instance := range instances {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", instance.ID, instance.Name)
			}

			return nil
		},
	}
}
