package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/quarrylane/praxis/internal/cli"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
