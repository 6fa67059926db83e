package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/config"
	"github.com/sudo-init-do/diecasthub/internal/db"
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

func main() {
	email := flag.String("email", "", "Email of the user to promote")
	role := flag.String("role", string(trade.RoleModerator), "Role to grant: moderator or admin")
	flag.Parse()

	if *email == "" {
		log.Fatalf("usage: go run cmd/adminutil/promote_moderator/main.go -email user@example.com [-role admin]")
	}
	switch trade.Role(*role) {
	case trade.RoleModerator, trade.RoleAdmin:
	default:
		log.Fatalf("role must be moderator or admin, got %q", *role)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB, zap.NewNop())
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	// Ensure the role constraint admits moderators (idempotent)
	_, err = pool.Exec(ctx, `
        ALTER TABLE users DROP CONSTRAINT IF EXISTS users_role_check;
        ALTER TABLE users ADD CONSTRAINT users_role_check CHECK (role IN ('user','moderator','admin'));
    `)
	if err != nil {
		log.Fatalf("failed to update users role constraint: %v", err)
	}

	ct, err := pool.Exec(ctx, `UPDATE users SET role = $1 WHERE email = $2`, *role, *email)
	if err != nil {
		log.Fatalf("failed to promote user: %v", err)
	}
	if ct.RowsAffected() == 0 {
		log.Fatalf("no user found with email: %s", *email)
	}

	fmt.Printf("User %s promoted to %s.\n", *email, *role)
}
