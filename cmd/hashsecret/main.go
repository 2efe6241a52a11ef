// Command hashsecret prints the bcrypt hash to put in ADMIN_SECRET_HASH.
//
//	go run ./cmd/hashsecret 'my shared secret'
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/class-seat-booking/internal/utils"
)

func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: hashsecret <secret>")
		os.Exit(2)
	}
	hash, err := utils.HashPassword(os.Args[1], bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
