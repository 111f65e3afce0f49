// Package fetch materializes repository references as local checkouts.
//
// A reference that already exists on the local filesystem is used in place
// and never cleaned up. Anything else is treated as a git URL and cloned
// into a scratch directory that the caller owns and removes.
package fetch
