package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/airzone-integration/internal/pkg/server"
	"github.com/anicoll/airzone-integration/pkg/hasher"
)

// HashPasswordCommand prints a bcrypt hash suitable for API_PASSWORD_HASH.
func HashPasswordCommand(ctx *cli.Context) error {
	password := ctx.String("password")
	if password == "" {
		return errors.New("password is required")
	}
	hash, err := hasher.HashPassword([]byte(password))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.App.Writer, hash)
	return err
}

// TokenCommand prints a signed API token without going through the login endpoint.
func TokenCommand(ctx *cli.Context) error {
	secret := ctx.String("secret")
	if secret == "" {
		return errors.New("secret is required")
	}
	token, expires, err := server.IssueToken(secret, ctx.String("subject"), ctx.Duration("ttl"), time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.App.Writer, "%s\nexpires %s\n", token, expires.Format(time.RFC3339))
	return err
}
