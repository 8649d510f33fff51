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
	"strings"

	"golang.org/x/term"

	logx "spendlens/internal/log"
	"spendlens/internal/session"
	"spendlens/internal/storage"
)

const defaultDBPath = "./data/spendlens.db"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address used to log in")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dbPath := fs.String("db", defaultDBPath, "Path to SQLite database file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" || *email == "" {
		fmt.Fprintln(stdout, "Usage: adduser -name <name> -email <email> [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		return errors.New("missing required flags: name, email")
	}

	password, confirm := *passwordFlag, *passwordFlag
	if password == "" {
		in := bufio.NewReader(stdin)
		var err error
		if password, err = prompt(stdin, in, stdout, "Password: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if confirm, err = prompt(stdin, in, stdout, "Confirm password: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	if strings.TrimSpace(password) == "" {
		return errors.New("password cannot be empty")
	}

	// Allow overriding db path via env var if not explicitly set via flag
	if path := os.Getenv("SQLITE_DB_PATH"); path != "" && *dbPath == defaultDBPath {
		*dbPath = path
	}

	// keep library logs off stdout
	logx.SetDefault(logx.New(logx.Config{Level: slog.LevelWarn, Output: stderr, Component: logx.ComponentApp}))

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	sessions := session.NewManager(repo)
	s, err := sessions.Register(ctx, session.Profile{
		Name:            *name,
		Email:           *email,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u := s.User()
	if err := sessions.Close(ctx); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", u.Email, u.ID)
	return nil
}

func prompt(stdin io.Reader, in *bufio.Reader, stdout io.Writer, label string) (string, error) {
	fmt.Fprint(stdout, label)
	defer fmt.Fprintln(stdout) // newline after hidden input
	return readPassword(stdin, in)
}

func readPassword(stdin io.Reader, in *bufio.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
