// Package stacks supplies the default buildpack catalog.
//
// The variants here carry deliberately small recipes: enough detection and
// contribution logic to turn common repository layouts into working build
// instructions, and to exercise the composition contract. Deeper
// per-ecosystem behavior belongs in the variants themselves and never in
// the composition engine.
package stacks
