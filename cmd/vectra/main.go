package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/helicon-labs/vectra/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for API keys and overrides.
	_ = godotenv.Load()

	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
