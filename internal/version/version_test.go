package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCommit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", shortCommit("abc"))
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef"))
}

func TestResolve(t *testing.T) {
	t.Parallel()
	info := Resolve()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, FormatVersion, info.Format)
	assert.NotEmpty(t, String())
}
