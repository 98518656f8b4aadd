package main

import (
	"context"
	"fmt"
	"os"

	"pawtrace-qr/internal/adapters/storage/postgres"
	"pawtrace-qr/internal/domain/export"
	"pawtrace-qr/internal/domain/pool"
	"pawtrace-qr/internal/domain/qr"
	"pawtrace-qr/internal/platform/logger"

	"github.com/spf13/cobra"
)

var (
	exportTag      string
	exportLimit    int
	exportShortIDs []string
	exportShape    string
	exportFormat   string
	exportPage     string
	exportOut      string
	exportBaseURL  string
	exportDSN      string
)

// exportCmd arma el zip de imprenta sin pasar por la API HTTP.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a batch of QR codes as a zip archive",
	Long: `Renderiza una selección de códigos (por short ids explícitos o una
página de no-asignados filtrada por tag) y escribe un zip con un archivo
por código más manifest.json.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportTag, "tag", "", "filter unassigned codes by tag type (dog|cat)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 50, "max unassigned codes to export")
	exportCmd.Flags().StringSliceVar(&exportShortIDs, "short-id", nil, "explicit short ids (repeatable; overrides --tag/--limit)")
	exportCmd.Flags().StringVar(&exportShape, "shape", "square", "qr shape (square|round)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "svg", "per-code format (svg|pdf)")
	exportCmd.Flags().StringVar(&exportPage, "page", "letter", "page size for pdf format (letter|a4)")
	exportCmd.Flags().StringVar(&exportOut, "out", "qr-export.zip", "output zip path")
	exportCmd.Flags().StringVar(&exportBaseURL, "base-url", "", "public base URL encoded in the codes (default: QR_BASE_URL env)")
	exportCmd.Flags().StringVar(&exportDSN, "dsn", "", "postgres DSN (default: DB_DSN env)")
}

func runExport(cmd *cobra.Command, args []string) error {
	shape, err := qr.ParseShape(exportShape)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	page, err := qr.ParsePageSize(exportPage)
	if err != nil {
		return err
	}

	db, err := openDB(exportDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	baseURL := exportBaseURL
	if baseURL == "" {
		baseURL = os.Getenv("QR_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://pawtrace.app"
	}

	svc := export.NewService(postgres.NewPoolRepo(db), baseURL, logger.NewFromEnv())

	archive, err := svc.ExportBatch(context.Background(),
		export.Selection{TagType: pool.TagType(exportTag), ShortIDs: exportShortIDs, Limit: exportLimit},
		export.Options{Shape: shape, Format: format, PageSize: page})
	if err != nil {
		return err
	}

	if err := os.WriteFile(exportOut, archive, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", exportOut, len(archive))
	return nil
}
