// Package buildpack defines the buildpack contract and composes the
// contributions of every applicable buildpack into one merged contract.
//
// A buildpack is a recipe that inspects a repository checkout and, when it
// applies, contributes packages, environment variables, path entries, and
// build scripts. Concrete variants are registered in a [Catalog] together
// with an explicit ancestor relation: a specialized variant names the more
// general variants whose contributions it builds on, so selecting the
// specialized variant always carries its ancestors along.
//
// [Compose] runs detection over the catalog, resolves ancestors, removes
// duplicates, orders the survivors by ascending order value, and returns a
// [Composite] whose accessors have the same shape as a single buildpack:
// package sets merge by union, ordered sequences by concatenation, and
// script-file maps by last writer wins.
//
// Example usage:
//
//	merged, err := buildpack.Compose(stacks.Default(), "/path/to/repo")
//	if err != nil {
//	    return err
//	}
//	for _, script := range merged.AssembleScripts() {
//	    ...
//	}
package buildpack
