package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agv",
		Short:         "Antigravity instance manager: isolated profiles, accounts and quotas",
		Long:          "agv manages isolated Antigravity instances (one user data dir each), binds accounts to them, controls the instance processes, and recommends the account with the most quota left per model category.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newInstanceCmd(app),
		newAccountCmd(app),
		newRecommendCmd(app),
		newWatchCmd(app),
	)

	return rootCmd
}
