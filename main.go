package main

import (
	"log"
	"os"

	"github.com/Conceptual-Machines/variation-explorer/internal/cli"
	"github.com/joho/godotenv"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := cli.Execute(GetVersion()); err != nil {
		os.Exit(1)
	}
}
