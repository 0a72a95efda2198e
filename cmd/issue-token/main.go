// Command issue-token mints an access token for a student or administrator
// using the JWT settings of the current environment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/uc-timetable-api/internal/models"
	"github.com/noah-isme/uc-timetable-api/internal/service"
	"github.com/noah-isme/uc-timetable-api/pkg/config"
)

func main() {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	flag.StringVar(&userID, "user", "", "student code or admin id")
	flag.StringVar(&role, "role", string(models.RoleStudent), "STUDENT or ADMIN")
	flag.DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to JWT_EXPIRATION")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if ttl <= 0 {
		ttl = cfg.JWT.Expiration
	}

	auth := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Expiry: ttl, Issuer: service.TokenIssuer}, nil)
	token, expiresAt, err := auth.IssueToken(userID, models.UserRole(strings.ToUpper(role)))
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
