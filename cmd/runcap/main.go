package main

import (
	"github.com/Paintersrp/runcap/internal/cli"
	"github.com/Paintersrp/runcap/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
