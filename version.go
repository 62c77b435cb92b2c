package repositories

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionFile string

// Version is the current version of the repositories library & REST host.
var Version = strings.TrimSpace(versionFile)
