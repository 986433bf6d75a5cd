package main

import (
	"fmt"
	"log"

	"github.com/smarttransit/seat-inventory/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for SmartTransit Seat Inventory")
	fmt.Println("===========================================")
	fmt.Println()

	jwtSecret, err := utils.GenerateSecret(utils.MinSecretBytes)
	if err != nil {
		log.Fatalf("Failed to generate JWT secret: %v", err)
	}

	fmt.Println("✅ Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}
