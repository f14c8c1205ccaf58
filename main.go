package main

import (
	"os"

	"github.com/conneroisu/htmlc/cmd"
	"github.com/conneroisu/htmlc/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}
