package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"pawtrace-qr/internal/adapters/storage/postgres"
	"pawtrace-qr/internal/domain/pool"
	"pawtrace-qr/internal/platform/logger"

	"github.com/spf13/cobra"
)

var (
	preloadTag       string
	preloadBatchSize int
	preloadDSN       string
)

// preloadCmd genera códigos por adelantado para la producción de tags
// físicos. Se corre antes de cada tanda de imprenta.
var preloadCmd = &cobra.Command{
	Use:   "preload [count]",
	Short: "Preload unassigned QR codes into the pool",
	Long: `Genera códigos cortos hasta que el pool tenga [count] entradas sin
asignar (default 500). Los batches se persisten secuencialmente; si el
comando se corta a mitad de camino, lo ya insertado queda y se puede
re-correr sin duplicar.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreload,
}

func init() {
	preloadCmd.Flags().StringVar(&preloadTag, "tag", "dog", "tag type for the generated codes (dog|cat)")
	preloadCmd.Flags().IntVar(&preloadBatchSize, "batch-size", 50, "codes persisted per batch")
	preloadCmd.Flags().StringVar(&preloadDSN, "dsn", "", "postgres DSN (default: DB_DSN env)")
}

func runPreload(cmd *cobra.Command, args []string) error {
	target := 500
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("count must be a positive integer, got %q", args[0])
		}
		target = n
	}

	tag := pool.TagType(preloadTag)
	if !tag.Valid() {
		return fmt.Errorf("unknown tag type %q", preloadTag)
	}

	db, err := openDB(preloadDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := pool.NewService(postgres.NewPoolRepo(db), pool.Config{}, logger.NewFromEnv(), nil)

	res, err := svc.Replenish(context.Background(), tag, target, preloadBatchSize)
	if err != nil {
		if res.Generated > 0 {
			fmt.Printf("Preloaded %d QR codes before failing\n", res.Generated)
		}
		return err
	}

	fmt.Printf("Successfully preloaded %d QR codes\n", res.Generated)
	fmt.Printf("Pool now holds %d unassigned codes at length %d (%d minted at this length)\n",
		res.FinalUnassigned, res.FinalLength, res.CodesAtLength)
	return nil
}

func openDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		return nil, errors.New("no database configured: pass --dsn or set DB_DSN")
	}
	return postgres.Open(dsn)
}
