package cli

import (
	"encoding/json"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/pipeline"
	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	listTier  string
	listQuery string
	listJSON  bool
)

// tokensCmd represents the tokens command
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the token catalog",
	Long: `List prints the catalog tree with every semantic token's resolved value.

Example:
  tokenatlas tokens
  tokenatlas tokens --tier semantic
  tokenatlas tokens --query blue --json`,
	Args: cobra.NoArgs,
	RunE: runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&listTier, "tier", "", "only show primitive or semantic tokens")
	tokensCmd.Flags().StringVarP(&listQuery, "query", "q", "", "case-insensitive search over names, values, descriptions and references")
	tokensCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a tree")
}

func runTokens(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	snap, err := pipeline.New(cfg, afero.NewOsFs()).Load(ctx)
	if err != nil {
		return err
	}

	categories := snap.Categories
	if listTier != "" {
		tier, err := model.ParseTier(listTier)
		if err != nil {
			return errors.WithStack(err)
		}
		categories = tokens.FilterByTier(categories, tier)
	}
	categories = tokens.FilterByQuery(categories, listQuery)
	flat := tokens.Flatten(categories)

	out := cmd.OutOrStdout()
	if listJSON {
		if categories == nil {
			categories = []*model.Category{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"categories": categories,
			"tokenMap":   flat,
			"meta":       flat.Meta(),
			"warnings":   snap.Messages(),
			"generation": snap.Generation,
		})
	}

	r := pipeline.NewRenderer(out)
	r.RenderTree(categories)
	r.RenderSummary(flat.Meta())
	r.RenderWarnings(snap.Messages())
	return nil
}
