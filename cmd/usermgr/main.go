// Command usermgr administers user accounts directly against the record store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"barcode-server/internal/auth"
	"barcode-server/internal/config"
	"barcode-server/internal/database"
	"barcode-server/internal/logger"
)

var errUsage = errors.New("usage")

const usage = `usage: usermgr [-db path] <command> [args]

commands:
  list                          list registered users
  add <username> <password>     create a user
  delete <username>             delete a user
  passwd <username> <password>  change a user's password
  check <username> <password>   test a password against the stored hash
`

func main() {
	dbPath := flag.String("db", "", "path to the JSON store (overrides db.path)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DB.Driver = "file"
		cfg.DB.Path = *dbPath
	}

	logg, err := logger.New("warn")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx := context.Background()
	store, err := database.Open(ctx, cfg.DB, logg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	err = run(ctx, store, flag.Args(), os.Stdout)
	if closeErr := store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store database.Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "list":
		return listUsers(ctx, store, out)
	case "add":
		if len(rest) != 2 {
			return errUsage
		}
		return addUser(ctx, store, out, rest[0], rest[1])
	case "delete":
		if len(rest) != 1 {
			return errUsage
		}
		return deleteUser(ctx, store, out, rest[0])
	case "passwd", "password":
		if len(rest) != 2 {
			return errUsage
		}
		return changePassword(ctx, store, out, rest[0], rest[1])
	case "check":
		if len(rest) != 2 {
			return errUsage
		}
		return checkPassword(ctx, store, out, rest[0], rest[1])
	default:
		return errUsage
	}
}

func listUsers(ctx context.Context, store database.Store, out io.Writer) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "No users registered yet.")
		return nil
	}
	for i, u := range users {
		fmt.Fprintf(out, "%d. %s (id %d, created %s)\n", i+1, u.Username, u.ID, u.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func addUser(ctx context.Context, store database.Store, out io.Writer, username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	id, err := store.CreateUser(ctx, username, hash)
	if errors.Is(err, database.ErrUsernameTaken) {
		return fmt.Errorf("username %q already exists", username)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "User %q added with id %d\n", username, id)
	return nil
}

func lookup(ctx context.Context, store database.Store, username string) (int64, string, error) {
	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, "", err
	}
	if user == nil {
		return 0, "", fmt.Errorf("user %q not found", username)
	}
	return user.ID, user.PasswordHash, nil
}

func deleteUser(ctx context.Context, store database.Store, out io.Writer, username string) error {
	id, _, err := lookup(ctx, store, username)
	if err != nil {
		return err
	}
	deleted, err := store.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %q not found", username)
	}
	fmt.Fprintf(out, "User %q deleted\n", username)
	return nil
}

func changePassword(ctx context.Context, store database.Store, out io.Writer, username, password string) error {
	id, _, err := lookup(ctx, store, username)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	updated, err := store.UpdateUserPassword(ctx, id, hash)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("user %q not found", username)
	}
	fmt.Fprintf(out, "Password changed for user %q\n", username)
	return nil
}

func checkPassword(ctx context.Context, store database.Store, out io.Writer, username, password string) error {
	_, hash, err := lookup(ctx, store, username)
	if err != nil {
		return err
	}
	if auth.CheckPasswordHash(password, hash) {
		fmt.Fprintf(out, "Password is CORRECT for user %q\n", username)
	} else {
		fmt.Fprintf(out, "Password is WRONG for user %q\n", username)
	}
	return nil
}
