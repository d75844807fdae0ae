// Package main provides the njvaxbot command that builds the vaccination maps.
package main

import (
	"context"

	"github.com/joho/godotenv"

	"njvaxbot/cmd/njvaxbot/commands"
)

func main() {
	_ = godotenv.Load(".env")

	commands.ExecuteContext(context.Background())
}
