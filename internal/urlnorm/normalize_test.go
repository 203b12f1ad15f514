package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnote/scrapesched/internal/urlnorm"
)

func TestNormalize_CaseAndTrailingSlash(t *testing.T) {
	a, err := urlnorm.Normalize("https://X.COM/a/")
	require.NoError(t, err)

	b, err := urlnorm.Normalize("https://x.com/a")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestNormalize_PreservesQuery(t *testing.T) {
	got, err := urlnorm.Normalize("https://Example.com/path/?b=2&a=1")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/path?b=2&a=1", got)
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := "https://Example.COM/Path/?x=1"

	first, err := urlnorm.Normalize(raw)
	require.NoError(t, err)

	second, err := urlnorm.Normalize(first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_RootPathUnaffectedByTrailingSlashRule(t *testing.T) {
	got, err := urlnorm.Normalize("https://example.com/")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/", got)
}
