package main

import (
	"os"

	canvascmder "github.com/papercomputeco/canvas/cmd/canvas"
)

func main() {
	cmd := canvascmder.NewCanvasCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
