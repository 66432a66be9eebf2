package router

import (
	"sort"
	"strings"
)

// imageSizes and imageRatios are the name suffixes an image model accepts
// for output size and aspect ratio.
var (
	imageSizes  = []string{"1k", "2k", "4k"}
	imageRatios = []string{"1x1", "16x9", "9x16", "4x3", "3x4", "21x9"}
)

// KnownModels enumerates everything /v1/models advertises: the built-in
// table's client names, literal custom-mapping patterns (wildcards are
// matching rules, not model names), and the size/ratio permutations of
// every image model.
func KnownModels(custom map[string]string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for name := range builtinTable {
		add(name)
		if strings.Contains(name, "image") {
			for _, variant := range imageVariants(name) {
				add(variant)
			}
		}
	}
	for pattern := range custom {
		if !strings.Contains(pattern, "*") {
			add(pattern)
		}
	}

	sort.Strings(out)
	return out
}

func imageVariants(base string) []string {
	var variants []string
	for _, size := range imageSizes {
		variants = append(variants, base+"-"+size)
	}
	for _, ratio := range imageRatios {
		variants = append(variants, base+"-"+ratio)
	}
	for _, size := range imageSizes {
		for _, ratio := range imageRatios {
			variants = append(variants, base+"-"+size+"-"+ratio)
		}
	}
	return variants
}
