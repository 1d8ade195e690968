// Command issue-token mints a bearer token for a directory user, for local
// development and smoke tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-approval/internal/config"
	"github.com/garyjia/purchase-approval/internal/container"
	"github.com/garyjia/purchase-approval/pkg/auth"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	email := flag.String("email", "", "email of the user to issue the token for")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: issue-token -email user@example.com [-config configs/config.yaml]")
		os.Exit(2)
	}

	if err := run(*configPath, *email); err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, email string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	db, err := container.ProvideDatabase(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.DB.Close()

	repos, err := container.ProvideRepositories(db.DB.DB, logger)
	if err != nil {
		return err
	}

	user, err := repos.Users.FindByEmail(context.Background(), email)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no user with email %s", email)
	}
	if !user.Active {
		return fmt.Errorf("user %s is inactive", email)
	}

	tokens, err := container.ProvideTokenManager(&cfg.Auth)
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(auth.UserSession{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Roles: user.Roles,
	})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
