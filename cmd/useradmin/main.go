// Command useradmin creates users and resets passwords directly against the
// SQLite database. There is no self-service signup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"payrecord/internal/auth"
	"payrecord/internal/cli"
	"payrecord/internal/config"
	"payrecord/internal/core"
	"payrecord/internal/storage"
)

const usage = `usage: useradmin [-db path] <command> [flags]

commands:
  create -username NAME -password PASS
  reset-password -username NAME -password PASS
  list
`

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], cfg.SQLiteDBPath, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "useradmin:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, defaultDB string, out io.Writer) error {
	global := flag.NewFlagSet("useradmin", flag.ContinueOnError)
	global.SetOutput(out)
	global.Usage = func() { fmt.Fprint(out, usage) }
	dbPath := global.String("db", defaultDB, "SQLite database path")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	authenticator := auth.NewPasswordAuthenticator(repo)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "create":
		username, password, err := parseCredentials(cmd, rest, out)
		if err != nil {
			return err
		}
		u, err := authenticator.Register(ctx, username, password)
		if errors.Is(err, core.ErrConflict) {
			return fmt.Errorf("user %q already exists", username)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s (%s)\n", u.Username, u.ID)
		return nil

	case "reset-password":
		username, password, err := parseCredentials(cmd, rest, out)
		if err != nil {
			return err
		}
		if err := authenticator.ResetPassword(ctx, username, password); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("user %q not found", username)
			}
			return err
		}
		fmt.Fprintf(out, "password reset for %s\n", username)
		return nil

	case "list":
		users, err := repo.ListUsers(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tCREATED")
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseCredentials(cmd string, args []string, out io.Writer) (string, string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (at least 6 characters)")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if err := core.ValidateCredentials(*username, *password); err != nil {
		return "", "", err
	}
	return *username, *password, nil
}
