package main

import (
	"fmt"
	"os"

	"github.com/gsdlabs/gsd-review-broker/cmd/gsd-review-broker/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
