package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/repositories/entity"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Upsert a JSON array of entities into PostgreSQL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		entities, err := readEntities(f)
		if err != nil {
			return err
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := entity.NewRepository(db, logger).Upsert(cmd.Context(), entities...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities\n", len(entities))
		return nil
	},
}

// readEntities decodes and validates a JSON array of entities
func readEntities(r io.Reader) ([]*models.Entity, error) {
	var entities []*models.Entity
	if err := json.NewDecoder(r).Decode(&entities); err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}
	for i, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
	}
	return entities, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
