package cli

import (
	"encoding/json"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	usageRefresh bool
	usageClear   bool
	usageUnused  bool
	usageJSON    bool
	usageToken   string
)

// usageCmd represents the usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show where tokens are used across the corpus",
	Long: `Usage scans the corpus for token references: CSS custom properties
(--colors-blue-500), dotted paths (colors.blue.500) and, when enabled,
literal primitive values. Results are cached until the corpus or the
catalog changes.

Example:
  tokenatlas usage --corpus ./src
  tokenatlas usage --unused
  tokenatlas usage --clear-cache
  tokenatlas usage --token colors.blue.500 --json`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().BoolVar(&usageRefresh, "refresh", false, "ignore cached results and rescan")
	usageCmd.Flags().BoolVar(&usageClear, "clear-cache", false, "drop every cached usage index before scanning")
	usageCmd.Flags().BoolVar(&usageUnused, "unused", false, "only list tokens nothing references")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "print the usage index as JSON")
	usageCmd.Flags().StringVar(&usageToken, "token", "", "only report a single token path")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, afero.NewOsFs())
	if _, err := p.Open(ctx); err != nil {
		return err
	}
	if usageClear {
		if err := p.ClearUsageCache(ctx); err != nil {
			return err
		}
	}
	index, err := p.Usage(ctx, usageRefresh)
	if err != nil {
		return err
	}

	if usageToken != "" {
		entries, ok := index[usageToken]
		if !ok {
			return errors.Errorf("unknown token: %s", usageToken)
		}
		index = model.UsageIndex{usageToken: entries}
	}

	out := cmd.OutOrStdout()
	if usageJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(index)
	}
	pipeline.NewRenderer(out).RenderUsage(index, usageUnused)
	return nil
}
