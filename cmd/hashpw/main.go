// Command hashpw prints a bcrypt hash for a member password, checked against
// the same strength rules and cost the API uses.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/pkg/auth"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run ./cmd/hashpw <password>")
	}
	password := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	passwords := auth.NewPasswordManager(cfg)

	hash, err := passwords.HashPassword(password)
	if err != nil {
		log.Fatalf("Error generating hash: %v", err)
	}

	if err := passwords.VerifyPassword(password, hash); err != nil {
		log.Fatalf("Hash verification failed: %v", err)
	}

	fmt.Printf("Hash (cost %d): %s\n", cfg.Security.BcryptCost, hash)
}
