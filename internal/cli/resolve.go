package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

var resolveType string

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run one resolution session and print it as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a := app.New(cfg, logger)
		if err := a.Start(ctx, false); err != nil {
			return err
		}
		defer a.Stop(context.WithoutCancel(ctx))

		session, runErr := a.Engine().ResolveAll(ctx, resolveType)

		out, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return runErr
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveType, "type", "", "entity type to resolve (Person, Organization, Generic); empty resolves all")
	rootCmd.AddCommand(resolveCmd)
}
