package execute

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandArgs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, name := range []string{"/data/b.txt", "/data/a.txt", "/data/c.go", "/data/ab.go"} {
		require.NoError(t, afero.WriteFile(fsys, name, nil, 0644))
	}

	cases := map[string]struct {
		args     []string
		expected []string
	}{
		"star":        {[]string{"ls", "/data/*.txt", "-l"}, []string{"ls", "/data/a.txt", "/data/b.txt", "-l"}},
		"question":    {[]string{"ls", "/data/?.go"}, []string{"ls", "/data/c.go"}},
		"two-globs":   {[]string{"/data/*.go", "/data/*.txt"}, []string{"/data/ab.go", "/data/c.go", "/data/a.txt", "/data/b.txt"}},
		"no-match":    {[]string{"ls", "/data/*.rs"}, []string{"ls", "/data/*.rs"}},
		"no-wildcard": {[]string{"echo", "plain"}, []string{"echo", "plain"}},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExpandArgs(fsys, tc.args))
		})
	}
}
