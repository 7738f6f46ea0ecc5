package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

type parseFlags struct {
	sources    []string
	maxItems   int
	categories []string
	dryRun     bool
	output     string
}

func newParseCmd() *cobra.Command {
	var f parseFlags
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Runs the parser once and prints the result as JSON",
		Long: `Crawls the selected sources, deduplicates the records and, unless
--dry-run is given, stores them. The full result is written as JSON to
stdout or to the file named by --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runParse(cmd, f)
		},
	}
	cmd.Flags().StringSliceVarP(&f.sources, "source", "s", nil, "source to parse (repeatable); defaults to the configured sources")
	cmd.Flags().IntVarP(&f.maxItems, "max-items", "m", 0, "maximum number of records; 0 uses the configured default")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "category name or path to crawl (repeatable)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "run without saving data to the database")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the JSON result to this file instead of stdout")
	return cmd
}

func runParse(cmd *cobra.Command, f parseFlags) error {
	if f.maxItems < 0 {
		return fmt.Errorf("--max-items must be >= 0")
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := zap.L().Named("cli")
	if f.dryRun {
		logger.Info("running in dry-run mode, no data will be saved")
	}

	res, runErr := appInstance.StartParsing(cmd.Context(), equipment.Options{
		Sources:    f.sources,
		MaxItems:   f.maxItems,
		Categories: f.categories,
		DryRun:     f.dryRun,
	})
	if err := writeResult(cmd.OutOrStdout(), f.output, res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("parsing failed: %w", runErr)
	}
	logger.Info("parsing completed",
		zap.Int("processed", res.Processed),
		zap.Int("records", len(res.Data)),
		zap.Int("failed", res.Failed),
		zap.Int("duplicates", res.Duplicates),
	)
	return nil
}

func writeResult(stdout io.Writer, path string, res equipment.ParseResult) error {
	w := stdout
	if path != "" && path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil {
				zap.L().Warn("close output file", zap.String("path", path), zap.Error(cerr))
			}
		}()
		w = file
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
