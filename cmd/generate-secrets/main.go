package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

// secretBytes gives 256-bit keys for both the HS256 secret and the BLAKE2b ticket key
const secretBytes = 32

func main() {
	fmt.Println("===========================================")
	fmt.Println("Seat Booking Secret Generator")
	fmt.Println("===========================================")
	fmt.Println()

	keys, err := distinctSecrets(2)
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", keys[0])
	fmt.Printf("TICKET_QR_SIGNING_KEY=%s\n", keys[1])
	fmt.Println()
	fmt.Println("JWT_SECRET must match the auth service that issues access tokens.")
	fmt.Println("===========================================")
}

// distinctSecrets returns n hex-encoded random keys, no two alike
func distinctSecrets(n int) ([]string, error) {
	seen := make(map[string]bool, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		b := make([]byte, secretBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to read random bytes: %w", err)
		}
		key := hex.EncodeToString(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}
