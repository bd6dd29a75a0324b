package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/easevote-backend/pkg/auth"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

// devtoken mints a bearer token for local testing of the organizer, scanner
// and admin routes. Production tokens come from the identity service.
func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	roleFlag := flag.String("role", string(enums.RoleScanner), "role: user|scanner|organizer|admin")
	flag.Parse()

	_ = godotenv.Load()

	app, jwtCfg, err := config.LoadTokenTooling()
	if err != nil {
		fail("load config: %v", err)
	}
	if app.IsProd() {
		fail("devtoken is disabled in %s", app.Env)
	}

	role, err := enums.ParseRole(*roleFlag)
	if err != nil {
		fail("invalid -role: %v", err)
	}
	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			fail("invalid -user: %v", err)
		}
	}

	token, err := auth.MintAccessToken(jwtCfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		fail("mint token: %v", err)
	}
	fmt.Println(token)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
