package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go-chat-realtime/internal/auth"

	"github.com/joho/godotenv"
)

// Prints a signed access token for local testing against the websocket
// endpoint.
func main() {
	userID := flag.String("user", "", "user id to embed in the token")
	name := flag.String("name", "", "display name to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	secret := os.Getenv("APP_SECRET")
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		log.Fatal("APP_SECRET is not set")
	}

	token, err := auth.GenerateToken(secret, *userID, *name, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
