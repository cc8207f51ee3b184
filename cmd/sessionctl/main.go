package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"searchkit/sessionclient/internal/app"
	"searchkit/sessionclient/internal/authapi"
	"searchkit/sessionclient/internal/config"
	"searchkit/sessionclient/internal/notify"
	"searchkit/sessionclient/internal/observability"
)

const usage = `usage: sessionctl <command> [flags]

commands:
  login -u USER [-p PASS]   authenticate and cache the token and profile
  logout                    end the session locally and on the server
  check                     verify the cached token with the server
  profile [-refresh]        print the cached profile
  update-email EMAIL        change the profile email
  status                    print the local session state
  ping                      check that the auth service answers
  watch                     re-check the token periodically until interrupted
`

var errFailed = errors.New("operation failed")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, notify.SinkFunc(printNotification))
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	err = run(ctx, a, os.Args[1], os.Args[2:])
	if cerr := a.Close(); cerr != nil {
		logger.Warn("close app", "err", cerr)
	}
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(2)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	m := a.Manager()
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		username := fs.String("u", "", "username")
		password := fs.String("p", "", "password (read from stdin when empty)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *username == "" {
			return fmt.Errorf("login: -u is required")
		}
		if *password == "" {
			pw, err := readPassword(os.Stdin)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			*password = pw
		}
		return result(m.Login(ctx, *username, *password))

	case "logout":
		m.Logout(ctx)
		return nil

	case "check":
		return result(m.CheckToken(ctx))

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ContinueOnError)
		refresh := fs.Bool("refresh", false, "fetch the profile from the server first")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *refresh && !m.RefreshProfile(ctx) {
			return errFailed
		}
		p, ok := m.Profile(ctx)
		if !ok {
			fmt.Fprintln(os.Stderr, "no cached profile")
			return errFailed
		}
		return printJSON(p)

	case "update-email":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("update-email: exactly one EMAIL argument is required")
		}
		email := strings.TrimSpace(args[0])
		return result(m.UpdateProfile(ctx, authapi.ProfileUpdate{Email: &email}))

	case "status":
		out := map[string]any{"status": m.Status(ctx).String()}
		if rec, ok := m.Authentication(ctx); ok && !rec.ExpiresAt.IsZero() {
			out["expires_at"] = rec.ExpiresAt.Time().Format(time.RFC3339)
		}
		if p, ok := m.Profile(ctx); ok {
			out["username"] = p.Username
		}
		return printJSON(out)

	case "ping":
		res := a.Client().Ping(ctx)
		if !res.OK() {
			fmt.Fprintf(os.Stderr, "auth service %s: %s\n", res.Status, pingDetail(res))
			return errFailed
		}
		fmt.Println(orDefault(res.Message, "ok"))
		return nil

	case "watch":
		return a.Watch(ctx)

	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func result(ok bool) error {
	if !ok {
		return errFailed
	}
	return nil
}

func printNotification(n notify.Notification) {
	if n.Message == "" {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Kind, n.Title)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Kind, n.Title, n.Message)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}

func pingDetail(res authapi.Result[authapi.Empty]) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return orDefault(res.Message, "no message")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
