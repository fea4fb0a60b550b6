package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pestscan-server/internal/domain/inference"
	"pestscan-server/internal/platform/config"
)

var version = "dev"

// --- Global Command Variables ---
var (
	configPath string
	threshold  float64
	record     bool
	quiet      bool
	workers    int

	rootCmd = &cobra.Command{
		Use:           "pestscan",
		Short:         "Offline coconut pest classification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	scanCmd = &cobra.Command{
		Use:   "scan [directory]",
		Short: "Classify every image in a directory and print a per-pest summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan, // Defined in cmd_scan.go
	}

	labelsCmd = &cobra.Command{
		Use:   "labels",
		Short: "Print the label set the model was trained on",
		Args:  cobra.NoArgs,
		RunE:  runLabels,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the pestscan version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pestscan %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to $PESTSCAN_CONFIG or ./config.yaml)")

	scanCmd.Flags().Float64Var(&threshold, "threshold", inference.DefaultConfidenceThreshold, "per-anchor confidence threshold in [0, 1]")
	scanCmd.Flags().BoolVar(&record, "record", false, "write audit records to the configured database")
	scanCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress pipeline logs")
	scanCmd.Flags().IntVar(&workers, "workers", 4, "images processed concurrently")

	rootCmd.AddCommand(scanCmd, labelsCmd, versionCmd)
}

func runLabels(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithPath(configPath)
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}

	labels, err := inference.LoadLabels(result.Config.Model)
	if err != nil {
		return err
	}
	printLabels(cmd.OutOrStdout(), labels)
	return nil
}

func printLabels(w io.Writer, labels []string) {
	for i, label := range labels {
		fmt.Fprintf(w, "%2d  %s\n", i, label)
	}
	fmt.Fprintf(w, "%d labels\n", len(labels))
}

func logSink(quiet bool) io.Writer {
	if quiet {
		return io.Discard
	}
	return os.Stderr
}

func separator() string {
	return strings.Repeat("=", 80)
}
