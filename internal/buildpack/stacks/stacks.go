package stacks

import (
	"os"
	"path/filepath"

	"github.com/kilnworks/kiln/internal/buildpack"
)

// Order values for the default catalog. Generic variants sort before the
// specializations that build on them.
const (
	orderBase    = 10
	orderConda   = 30
	orderPython  = 40
	orderR       = 50
	orderPipfile = 60
)

// Returns the default buildpack catalog.
//
// Catalog order is detection order; it also breaks ties between variants
// with equal order values.
func Default() buildpack.Catalog {
	return buildpack.Catalog{
		{
			Name: "base",
			New:  func(root string) buildpack.Buildpack { return newBase(root) },
		},
		{
			Name:      "conda",
			Ancestors: []string{"base"},
			New:       func(root string) buildpack.Buildpack { return newConda(root) },
		},
		{
			Name:      "python",
			Ancestors: []string{"base"},
			New:       func(root string) buildpack.Buildpack { return newPython(root) },
		},
		{
			Name:      "pipfile",
			Ancestors: []string{"python"},
			New:       func(root string) buildpack.Buildpack { return newPipfile(root) },
		},
		{
			Name:      "r",
			Ancestors: []string{"base"},
			New:       func(root string) buildpack.Buildpack { return newR(root) },
		},
	}
}

// Whether a file exists at the top level of the checkout.
func exists(root string, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && !info.IsDir()
}
