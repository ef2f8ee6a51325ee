package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	for _, test := range []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Hello World", "hello-world"},
		{"punctuation stripped", "Nightly Backup!!", "nightly-backup"},
		{"repeated whitespace", "foo   bar", "foo-bar"},
		{"leading trailing space", "  trim me  ", "trim-me"},
		{"already a slug", "already-a-slug", "already-a-slug"},
		{"unicode stripped", "café déjà-vu", "caf-dj-vu"},
		{"empty falls back", "", defaultSlug},
		{"all punctuation falls back", "!!!", defaultSlug},
		{"collapses repeated dashes", "a----b", "a-b"},
	} {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, Make(test.in))
		})
	}
}

func TestMakeIdempotent(t *testing.T) {
	for _, in := range []string{"Hello World", "  spaced out  ", "already-a-slug", "", "日本語"} {
		once := Make(in)
		twice := Make(once)
		require.Equal(t, once, twice, "Make must be idempotent for %q", in)
	}
}
