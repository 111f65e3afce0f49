// Package render turns a merged buildpack contract into a build context.
//
// The context is a self-contained temporary directory: a generated
// Dockerfile at the root, contributed script files under scripts/ and
// preassemble/, and the repository contents under src/. The caller owns
// the directory and removes it when the build finishes.
package render
