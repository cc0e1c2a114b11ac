package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMowerName(t *testing.T) {
	names := []string{"Front Lawn", "back-garden"}

	name, err := resolveMowerName("front_lawn", names)
	require.NoError(t, err)
	assert.Equal(t, "Front Lawn", name)

	name, err = resolveMowerName("Back Garden", names)
	require.NoError(t, err)
	assert.Equal(t, "back-garden", name)

	_, err = resolveMowerName("side", names)
	require.EqualError(t, err, `mower "side" not found. Available: Front Lawn, back-garden`)
}

func TestMowerRow(t *testing.T) {
	row := mowerRow(map[string]any{
		"name":          "Lawn",
		"model":         "Indego",
		"serial":        "1234567",
		"state":         "mowing",
		"status":        "mowing",
		"code":          float64(513),
		"authenticated": true,
	})
	assert.Equal(t, []string{"Lawn", "Indego", "1234567", "mowing", "mowing (513)", "yes"}, row)

	assert.Equal(t, []string{"", "", "", "", "", "no"}, mowerRow(map[string]any{}))
}
