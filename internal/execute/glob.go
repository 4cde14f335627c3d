package execute

import (
	"strings"

	"github.com/spf13/afero"

	"rash/internal/slice"
)

// ExpandArgs replaces every argument holding '*' or '?' with the sorted
// paths it matches. An argument matching nothing is kept literally; some
// shells drop it instead.
func ExpandArgs(fsys afero.Fs, args []string) []string {
	for i := 0; i < len(args); i++ {
		if !strings.ContainsAny(args[i], "*?") {
			continue
		}

		matches, err := afero.Glob(fsys, args[i])
		if err != nil || len(matches) == 0 {
			continue
		}

		args = slice.Splice(args, i, matches...)
		i += len(matches) - 1
	}

	return args
}
