package main

import (
	"os"

	prismcmder "github.com/keyframeco/prism/cmd/prism"
)

func main() {
	cmd := prismcmder.NewPrismCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
