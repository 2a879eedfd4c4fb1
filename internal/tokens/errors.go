package tokens

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"
)

// Parse failure causes.
var (
	ErrMalformed      = errors.Base("malformed token source")
	ErrDuplicateKey   = errors.Base("duplicate key")
	ErrInvalidKey     = errors.Base("invalid key")
	ErrInvalidLeaf    = errors.Base("invalid token")
	ErrTierConflict   = errors.Base("primitive token carries a reference")
	ErrOrphanToken    = errors.Base("token outside any category")
	ErrDuplicateGroup = errors.Base("duplicate top-level category")
)

// ParseError reports a problem with one source file or one location in it
type ParseError struct {
	File string // Source file
	Path string // Token or category path within the file, if known
	Line int    // 1-based line, if known
	Err  error

	Skipped bool // The whole file was left out of the catalog
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Path != "" {
		return fmt.Sprintf("parse %s (%s): %v", loc, e.Path, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// joinWarnings folds parse warnings into a single error, or nil
func joinWarnings(warnings []*ParseError) error {
	var result *multierror.Error
	for _, w := range warnings {
		result = multierror.Append(result, w)
	}
	return result.ErrorOrNil()
}
