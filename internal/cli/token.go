package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/pipeline"
	"github.com/ppiankov/tokenatlas/internal/store"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	tokenRef         string
	tokenType        string
	tokenDescription string
	tokenTier        string
)

// tokenCmd groups single-token mutations; changes are written back to the source
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create, update or delete a single token",
	Long: `Token edits one token and writes the catalog back to the token source,
keeping its layout (one file per category or a single file) and format.

Example:
  tokenatlas token add color.blue.600 "#2563eb" --type color
  tokenatlas token add color.link --ref color.blue.600
  tokenatlas token set spacing.md 12
  tokenatlas token rm color.blue.600
  tokenatlas token deps color.blue.500`,
}

var tokenAddCmd = &cobra.Command{
	Use:   "add <path> [value]",
	Short: "Create a token",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd, func(ctx context.Context, s *store.Store) error {
			snap, err := s.Create(ctx, args[0], tokenFromFlags(args))
			if err != nil {
				return err
			}
			reportToken(cmd, "Created", args[0], snap)
			return nil
		})
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <path> [value]",
	Short: "Replace an existing token",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd, func(ctx context.Context, s *store.Store) error {
			snap, err := s.Update(ctx, args[0], tokenFromFlags(args))
			if err != nil {
				return err
			}
			reportToken(cmd, "Updated", args[0], snap)
			return nil
		})
	},
}

var tokenRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd, func(ctx context.Context, s *store.Store) error {
			result, err := s.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Deleted %s\n", args[0])
			if len(result.Dependents) > 0 {
				fmt.Fprintln(out, color.New(color.FgYellow).Sprintf("! %d token(s) referenced %s and are now unresolved:", len(result.Dependents), args[0]))
				for _, d := range result.Dependents {
					fmt.Fprintf(out, "  %s\n", d)
				}
			}
			return nil
		})
	},
}

var tokenDepsCmd = &cobra.Command{
	Use:   "deps <path>",
	Short: "List tokens that reference a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		snap, err := pipeline.New(cfg, afero.NewOsFs()).Load(ctx)
		if err != nil {
			return err
		}
		deps, err := store.New(snap).Dependents(args[0])
		if err != nil {
			return err
		}
		for _, d := range deps {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenAddCmd, tokenSetCmd, tokenRmCmd, tokenDepsCmd)

	for _, c := range []*cobra.Command{tokenAddCmd, tokenSetCmd} {
		c.Flags().StringVar(&tokenRef, "ref", "", "referenced token path (makes the token semantic)")
		c.Flags().StringVar(&tokenType, "type", "", "type hint, e.g. color or dimension")
		c.Flags().StringVar(&tokenDescription, "description", "", "human-readable description")
		c.Flags().StringVar(&tokenTier, "tier", "", "primitive or semantic (inferred when omitted)")
	}
}

// tokenFromFlags builds the payload from the optional value argument and flags.
// Numeric values are stored as numbers.
func tokenFromFlags(args []string) model.Token {
	tok := model.Token{
		Type:        tokenType,
		Description: tokenDescription,
		Reference:   tokenRef,
		Tier:        model.Tier(strings.ToLower(tokenTier)),
	}
	if len(args) > 1 {
		raw := args[1]
		if n, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			tok.Value = model.NumberValue(n)
		} else {
			tok.Value = model.StringValue(raw)
		}
	}
	return tok
}

// mutate opens the catalog with persistence enabled and applies fn
func mutate(cmd *cobra.Command, fn func(ctx context.Context, s *store.Store) error) error {
	ctx, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg.Source.Persist = true

	s, err := pipeline.New(cfg, afero.NewOsFs()).Open(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, s)
}

func reportToken(cmd *cobra.Command, verb, path string, snap *store.Snapshot) {
	tok := snap.Tokens[path]
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s %s = %s", verb, path, tok.Value.String())
	if tok.IsSemantic() {
		if tok.ResolvedValue != nil {
			fmt.Fprintf(out, " -> %s", tok.ResolvedValue.String())
		} else {
			fmt.Fprint(out, color.New(color.FgRed).Sprint(" -> unresolved"))
		}
	}
	fmt.Fprintln(out)
}
