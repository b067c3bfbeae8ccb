package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return app.New(cfg, logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
