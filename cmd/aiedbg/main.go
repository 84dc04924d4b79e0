package main

import (
	"github.com/aiedbg/aiedbg/cmd/aiedbg/cmds"
	"github.com/aiedbg/aiedbg/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.AiedbgVersion.Build = Build
	}
	cmds.New().Execute()
}
