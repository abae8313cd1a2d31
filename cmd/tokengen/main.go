// tokengen mints an HS256 bearer token for curl and local testing.
//
//	JWT_SECRET=dev-secret tokengen -sub alice -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sharedcode/xfer/auth"
)

func main() {
	secret := flag.String("secret", "", "HMAC secret; defaults to JWT_SECRET env")
	subject := flag.String("sub", "dev", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	s := *secret
	if s == "" {
		s = os.Getenv("JWT_SECRET")
	}
	if s == "" {
		s = "dev-secret"
	}

	token, err := auth.Mint(s, *subject, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "minting token failed:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
