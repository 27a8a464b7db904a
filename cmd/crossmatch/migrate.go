package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meridian-data/crossmatch/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, err := openStorage()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					slog.Error("Failed to close database", "error", closeErr)
				}
			}()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			version, err := db.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if version != storage.ExpectedSchemaVersion {
				return fmt.Errorf("schema version %d, expected %d", version, storage.ExpectedSchemaVersion)
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Database at schema version %d.", version)))
			return nil
		},
	}
}
