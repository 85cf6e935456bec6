// Package main provides account maintenance for operators: setting and
// checking the optional local password on a Google-provisioned user.
//
// Usage:
//
//	admin set-password   -user <google subject>   < password
//	admin check-password -username <username>     < password
//
// The password is read from the first line of stdin so it never shows up in
// the process list or shell history. Store settings come from the same
// DATABASE_DRIVER, DATABASE_URL and STORE_TIMEOUT variables as the server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sakif/device-manager/internal/auth"
	"github.com/sakif/device-manager/internal/config"
	"github.com/sakif/device-manager/internal/repository/sqlstore"
	"github.com/sakif/device-manager/internal/service"
)

// Exit codes. A failed check is distinct from a broken run so scripts can
// tell "wrong password" from "database down".
const (
	exitOK       = 0
	exitMismatch = 1
	exitError    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitError
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cost := fs.Int("cost", auth.DefaultPasswordCost, "bcrypt cost for new hashes")

	var user, username *string
	switch cmd {
	case "set-password":
		user = fs.String("user", "", "Google subject (external id) of the account")
	case "check-password":
		username = fs.String("username", "", "username of the account")
	default:
		usage(stderr)
		return exitError
	}
	if err := fs.Parse(rest); err != nil {
		return exitError
	}

	st, err := config.LoadStore()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	db, err := sqlstore.New(ctx, sqlstore.Dialect(st.DatabaseDriver), st.DatabaseURL, sqlstore.WithTimeout(st.StoreTimeout))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "Error: close store: %v\n", err)
		}
	}()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	accounts := service.NewAccountService(db, auth.NewPasswordService(*cost), logger)

	password, err := readPassword(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	switch cmd {
	case "set-password":
		if *user == "" {
			fmt.Fprintln(stderr, "Error: -user is required")
			return exitError
		}
		if err := accounts.SetPassword(ctx, *user, password); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "password set for %s\n", *user)
		return exitOK

	default: // check-password
		if *username == "" {
			fmt.Fprintln(stderr, "Error: -username is required")
			return exitError
		}
		ok, err := accounts.ValidateCredentials(ctx, *username, password)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		if !ok {
			fmt.Fprintln(stdout, "mismatch")
			return exitMismatch
		}
		fmt.Fprintln(stdout, "ok")
		return exitOK
	}
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must be given on stdin")
	}
	return line, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: admin <set-password|check-password> [flags] < password")
}
