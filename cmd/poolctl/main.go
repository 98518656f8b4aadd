package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Operate the PawTrace QR code pool",
	Long: `poolctl administra el pool de códigos QR de PawTrace desde la línea
de comandos: precarga de códigos para producción de tags y export de
lotes listos para imprenta.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(preloadCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
