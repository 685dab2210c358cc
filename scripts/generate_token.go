//go:build ignore

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/pkg/auth"
)

func main() {
	userID := flag.String("user", "", "user id carried in the token")
	name := flag.String("name", "", "display name recorded on approvals")
	role := flag.String("role", "", "logistic_approver, purchase_approver, admin or empty")
	flag.Parse()

	if *userID == "" {
		log.Fatal("Usage: go run scripts/generate_token.go -user <id> [-name <name>] [-role <role>]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(*userID, *name, *role)
	if err != nil {
		log.Fatal("Error generating token:", err)
	}

	fmt.Printf("User: %s (%s)\n", *userID, *role)
	fmt.Printf("Expires in: %s\n", cfg.JWT.AccessTokenExpiry)
	fmt.Printf("Token: %s\n", token)
}
