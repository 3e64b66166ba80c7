package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

func newRecommendCmd(app *app) *cobra.Command {
	var (
		instanceID string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend the account with the most quota left per model category",
		Long:  "Scores every known account per configured model category from its quota snapshot and prints the best pick per category. With --instance, that instance's current account is excluded so the recommendation always points somewhere new.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.directory.List(cmd.Context())
			if err != nil {
				return err
			}

			var exclude domain.AccountID
			if instanceID != "" {
				instance, err := app.registry.Get(cmd.Context(), domain.InstanceID(instanceID))
				if err != nil {
					return err
				}
				exclude = instance.CurrentAccountID
			}

			recommendations := domain.Recommend(accounts, app.categories, exclude)

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(recommendations)
			}

			if len(recommendations) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no accounts with remaining quota")
				return err
			}

			for _, rec := range recommendations {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d%%\n", rec.Category, rec.AccountID, rec.Score)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "exclude this instance's current account")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print recommendations as JSON")

	return cmd
}
