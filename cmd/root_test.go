package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeSurfacesConfigErrors(t *testing.T) {
	t.Setenv("PORT", "99999")

	rootCmd.SetArgs([]string{"serve", "--root", t.TempDir()})
	err := rootCmd.Execute()

	// Execute() maps this error to exit code 1.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99999")
}
