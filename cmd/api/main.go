package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"

	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "photo-tagger",
		Short: "AI tag suggestions for photos",
		Long: `photo-tagger runs a vision classifier, a place resolver and a semantic
describer over stored photos, fuses their answers into tag suggestions and
lets users adopt them.`,
		SilenceUsage: true,
	}

	defaultPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to config.yaml")

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		analyzeCmd(),
		batchCmd(),
		applyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version info",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("photo-tagger %s (%s, %s)\n", version, commit, buildDate)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
