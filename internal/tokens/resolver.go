package tokens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
)

// WarningKind classifies a resolution failure
type WarningKind string

const (
	WarningMissing WarningKind = "missing" // A hop points at a path that does not exist
	WarningCycle   WarningKind = "cycle"   // The chain revisits a path
	WarningDepth   WarningKind = "depth"   // The chain exceeded the walk bound
)

// ResolutionWarning explains why a semantic token has no resolved value
type ResolutionWarning struct {
	Path      string      `json:"path"`
	Kind      WarningKind `json:"kind"`
	Reference string      `json:"reference,omitempty"` // The hop that failed
	Chain     []string    `json:"chain,omitempty"`     // Paths walked before failing
}

func (w ResolutionWarning) String() string {
	switch w.Kind {
	case WarningMissing:
		return fmt.Sprintf("%s: reference %q not found", w.Path, w.Reference)
	case WarningCycle:
		return fmt.Sprintf("%s: reference cycle %s -> %s", w.Path, strings.Join(w.Chain, " -> "), w.Reference)
	case WarningDepth:
		return fmt.Sprintf("%s: reference chain longer than %d hops", w.Path, len(w.Chain))
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Kind)
}

// Resolve returns a copy of tokens with every semantic token's resolved value
// filled from the terminal primitive of its reference chain. It never fails:
// missing targets, cycles and over-long chains leave the resolved value
// absent and produce a warning. Resolving an already resolved map yields the
// same map.
func Resolve(tokens model.TokenMap, maxDepth int) (model.TokenMap, []ResolutionWarning) {
	if maxDepth <= 0 {
		maxDepth = model.DefaultMaxDepth
	}

	out := make(model.TokenMap, len(tokens))
	var warnings []ResolutionWarning

	for path, tok := range tokens {
		tok.ResolvedValue = nil
		if tok.IsSemantic() {
			if v, w := walk(tokens, path, tok.Reference, maxDepth); w != nil {
				warnings = append(warnings, *w)
			} else {
				tok.ResolvedValue = &v
			}
		}
		out[path] = tok
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return out, warnings
}

func walk(tokens model.TokenMap, origin, ref string, maxDepth int) (model.Value, *ResolutionWarning) {
	chain := []string{origin}
	seen := map[string]bool{origin: true}

	for hops := 0; hops < maxDepth; hops++ {
		if seen[ref] {
			return model.Value{}, &ResolutionWarning{Path: origin, Kind: WarningCycle, Reference: ref, Chain: chain}
		}
		target, ok := tokens[ref]
		if !ok {
			return model.Value{}, &ResolutionWarning{Path: origin, Kind: WarningMissing, Reference: ref, Chain: chain}
		}
		if !target.IsSemantic() {
			return target.Value, nil
		}
		seen[ref] = true
		chain = append(chain, ref)
		ref = target.Reference
	}
	return model.Value{}, &ResolutionWarning{Path: origin, Kind: WarningDepth, Reference: ref, Chain: chain}
}

// Dependents lists the tokens whose reference points directly at path
func Dependents(tokens model.TokenMap, path string) []string {
	var out []string
	for p, tok := range tokens {
		if tok.IsSemantic() && tok.Reference == path {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
