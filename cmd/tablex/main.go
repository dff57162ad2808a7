package main

import (
	"fmt"
	"os"

	"github.com/hatlonely/tablex/workset"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		title, description := workset.Describe(err)
		fmt.Fprintf(os.Stderr, "%s: %s\n", title, description)
		os.Exit(1)
	}
}
