package main

import (
	"os"

	"github.com/bvweerd/battery-controller/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
