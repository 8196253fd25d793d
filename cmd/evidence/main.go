package main

import (
	"fmt"
	"os"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
