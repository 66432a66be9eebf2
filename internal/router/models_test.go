package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKnownModelsIncludesBuiltinsAndCustom(t *testing.T) {
	models := KnownModels(map[string]string{
		"my-alias": "gemini-2.5-pro",
		"gpt-*":    "gemini-2.5-flash",
	})

	has := func(name string) bool {
		for _, m := range models {
			if m == name {
				return true
			}
		}
		return false
	}

	require.True(t, has("gpt-4o"))
	require.True(t, has("my-alias"))
	// wildcard patterns are rules, not advertised model names
	require.False(t, has("gpt-*"))
}

func TestKnownModelsSynthesizesImagePermutations(t *testing.T) {
	models := KnownModels(nil)

	var sized, ratioed bool
	for _, m := range models {
		switch m {
		case "gemini-3-pro-image-4k":
			sized = true
		case "gemini-3-pro-image-16x9":
			ratioed = true
		}
	}
	require.True(t, sized, "expected -4k size variant")
	require.True(t, ratioed, "expected -16x9 ratio variant")

	// every variant still routes (passthrough on the gemini- prefix)
	res, err := Resolve("gemini-3-pro-image-4k-16x9", nil)
	require.NoError(t, err)
	require.Equal(t, "gemini-3-pro-image-4k-16x9", res.Upstream)
}
