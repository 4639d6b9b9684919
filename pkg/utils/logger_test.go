package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSugaredLogger(t *testing.T) {
	t.Parallel()

	sugar, err := NewSugaredLogger(false)
	require.NoError(t, err)
	require.NotNil(t, sugar)
	assert.False(t, sugar.Desugar().Core().Enabled(-1), "production logger hides debug")

	sugar, err = NewSugaredLogger(true)
	require.NoError(t, err)
	require.NotNil(t, sugar)
	assert.True(t, sugar.Desugar().Core().Enabled(-1), "development logger enables debug")
}
