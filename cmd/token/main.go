// Command token mints short-lived HS256 bearer tokens for calling the
// API during development and testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	userID := flag.String("user", "", "User UUID for the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -secret <jwt-secret> -user <user-uuid> [-ttl 24h]")
		fmt.Fprintln(os.Stderr, "  Reads the secret from JWT_SECRET if -secret not specified")
		os.Exit(1)
	}

	if _, err := uuid.Parse(*userID); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user UUID: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": *userID,
		"iat":     now.Unix(),
		"exp":     now.Add(*ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(signed)
}
