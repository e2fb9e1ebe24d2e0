package proc

import (
	"fmt"
	"strings"
)

// ParseCommandLine splits s on runs of spaces. The first word is the
// program name and also argv[0]. maxArgs bounds the number of words; zero
// means no bound.
func ParseCommandLine(s string, maxArgs int) (string, []string, error) {
	args := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
	if len(args) == 0 {
		return "", nil, fmt.Errorf("empty: %w", ErrInvalidCommandLine)
	}
	if maxArgs > 0 && len(args) > maxArgs {
		return "", nil, fmt.Errorf("%d arguments, at most %d allowed: %w", len(args), maxArgs, ErrInvalidCommandLine)
	}
	return args[0], args, nil
}
