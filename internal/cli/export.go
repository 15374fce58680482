package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/config"
	"spelling-assessment-service/internal/export"
	pgstore "spelling-assessment-service/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewExportCmd writes a round's flat assessment rows as CSV, to a file or stdout.
func NewExportCmd(configPath *string) *cobra.Command {
	var roundID string
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a round's per-rule results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), *configPath, roundID, outPath)
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "test round id to export")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("round")
	return cmd
}

func runExport(ctx context.Context, configPath, roundID, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	roster, err := pgstore.NewRosterLoader(pool).LoadRoster(ctx, roundID)
	if err != nil {
		return err
	}

	rows, err := app.ExportRows(roster.Students, roster.Words, roster.Rules, roster.Assessments)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if err := export.WriteCSV(out, rows); err != nil {
		return err
	}
	if outPath != "" {
		log.Printf("exported %d rows to %s", len(rows), outPath)
	}
	return nil
}
