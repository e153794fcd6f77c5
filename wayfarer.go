package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/wayfarerhq/wayfarer/cmd/wayfarer"
	"github.com/wayfarerhq/wayfarer/internal/config"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
