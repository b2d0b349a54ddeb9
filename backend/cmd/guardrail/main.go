package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		if err != errNotAllowed {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if errors.Is(err, errNotAllowed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
