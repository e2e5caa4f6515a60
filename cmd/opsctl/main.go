package main

import (
	"fmt"
	"os"

	"github.com/dejobratic/opsapi/internal/cli"
	"github.com/dejobratic/opsapi/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "opsctl: load config: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	os.Exit(cli.Execute(cli.NewRuntime(cfg), os.Args[1:]))
}
