// Command vansales-hash prints a PORTAL_USERS entry for one user. The
// password is read from the first line of standard input.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"vansales/internal/auth"
	"vansales/internal/core"
)

func main() {
	user := flag.String("user", "", "username")
	role := flag.String("role", string(core.RoleSalesperson), "admin or salesperson")
	flag.Parse()

	if strings.TrimSpace(*user) == "" || strings.Contains(*user, ":") {
		log.Fatal("-user is required and must not contain ':'")
	}
	if !core.Role(*role).IsValid() {
		log.Fatalf("unknown role %q", *role)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("read password: %v", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s:%s:%s\n", *user, *role, hash)
}
