// Package utils holds small helpers shared by the canvas commands that do
// not warrant a package of their own.
package utils

// Build metadata for "canvas version". Release builds override these with
// -ldflags "-X github.com/papercomputeco/canvas/pkg/utils.Version=...".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
