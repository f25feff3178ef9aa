// ownerctl mints dashboard credentials: a signed owner JWT, or the bcrypt
// hash to put in OWNER_API_KEY_HASH for a raw API key.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookpage-app/bookpage/libs/auth"
)

func main() {
	var (
		mode       = flag.String("mode", "jwt", "jwt or hash-key")
		secret     = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
		businessID = flag.String("business-id", "", "business id for the token")
		subject    = flag.String("subject", "owner", "token subject")
		ttl        = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		apiKey     = flag.String("api-key", "", "raw api key to hash")
	)
	flag.Parse()

	switch *mode {
	case "jwt":
		if *secret == "" || *businessID == "" {
			fatal("-secret and -business-id are required")
		}
		now := time.Now()
		token, err := auth.SignHS256(auth.Claims{
			Sub:        *subject,
			BusinessID: *businessID,
			Role:       "owner",
			Iat:        now.Unix(),
			Exp:        now.Add(*ttl).Unix(),
		}, *secret)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(token)
	case "hash-key":
		if *apiKey == "" {
			fatal("-api-key is required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*apiKey), bcrypt.DefaultCost)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(string(hash))
	default:
		fatal("unknown mode: " + *mode)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
