// Package main is the single-binary entrypoint for the vsmcore node.
package main

import "github.com/vsmcore/vsmcore/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
