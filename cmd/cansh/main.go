package main

import (
	"github.com/imperator-maximus/Quassel-UGV/pkg/cli/cansh"
)

//go-build: CGO_ENABLED=0

func main() {
	cansh.Main()
}
