package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"golang.org/x/term"

	"github.com/ankitsahu6387/expenseTracker/internal/session"
	"github.com/ankitsahu6387/expenseTracker/internal/signup"
	"github.com/ankitsahu6387/expenseTracker/internal/tokenstore"
	"github.com/ankitsahu6387/expenseTracker/internal/web"
	apiclient "github.com/ankitsahu6387/expenseTracker/pkg/api/client"
	"github.com/ankitsahu6387/expenseTracker/pkg/config"
	"github.com/ankitsahu6387/expenseTracker/pkg/jwt"
	"github.com/ankitsahu6387/expenseTracker/pkg/logger"
)

// sessionKey stores this machine's session id next to the token.
const sessionKey = "sid"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	cfg := config.LoadClientConfig()
	log := logger.New("expense-cli", cfg.LogLevel)

	var err error
	switch cmd {
	case "signup":
		err = commandSignUp(cfg, log, args)
	case "whoami":
		err = commandWhoAmI(cfg, log)
	case "logout":
		err = commandLogout(cfg, log)
	case "serve":
		err = commandServe(cfg, log, args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSignUp(cfg config.ClientConfig, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	photo := fs.String("photo", "", "Optional path to a profile photo")
	apiBase := fs.String("api", "", "API base URL (default $EXPENSE_API_URL)")
	fs.Parse(args)

	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}

	secret := *password
	if secret == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		secret = string(bytes)
	}

	form := signup.Form{}.
		WithFullName(*name).
		WithEmail(*email).
		WithPassword(secret)
	if path := strings.TrimSpace(*photo); path != "" {
		p, err := readPhoto(path)
		if err != nil {
			return err
		}
		form = form.WithPhoto(p)
	}

	client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := signup.NewMetrics(reg)
	if err != nil {
		return err
	}
	api := signup.NewAPI(client)
	submitter := signup.NewSubmitter(api, api, log, signup.WithMetrics(metrics))

	store := tokenstore.NewFile(cfg.StorageFile, cfg.StorageKey)
	sessions, closeSessions, err := openSessions(cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	fx := signup.Effects{
		Tokens:  store,
		Session: storedSession{store: store, backend: sessions},
		Navigator: signup.NavigatorFunc(func(path string) {
			fmt.Printf("account created, log in at %s%s\n", strings.TrimRight(cfg.AppURL, "/"), path)
		}),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	st, outcome := submitter.Submit(ctx, signup.State{Form: form}, fx)
	pushMetrics(cfg, log, reg)

	switch outcome {
	case signup.OutcomeInvalid, signup.OutcomeFailed:
		return errors.New(st.Error)
	}
	return nil
}

func readPhoto(path string) (signup.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return signup.Photo{}, fmt.Errorf("read photo: %w", err)
	}
	return signup.Photo{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// localSessionID returns the session id kept in durable storage, creating
// one on first use.
func localSessionID(store *tokenstore.File) (string, error) {
	sid, ok, err := store.Get(sessionKey)
	if err != nil {
		return "", err
	}
	if ok && sid != "" {
		return sid, nil
	}
	sid = uuid.NewString()
	if err := store.Set(sessionKey, sid); err != nil {
		return "", err
	}
	return sid, nil
}

// storedSession binds the user to this machine's session id, which is only
// created once a registration succeeds.
type storedSession struct {
	store   *tokenstore.File
	backend session.Backend
}

func (s storedSession) Update(ctx context.Context, user apiclient.User) error {
	sid, err := localSessionID(s.store)
	if err != nil {
		return err
	}
	return session.Bind(s.backend, sid).Update(ctx, user)
}

func openSessions(cfg config.ClientConfig, log *slog.Logger) (session.Backend, func(), error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return session.NewMemory(), func() {}, nil
	}
	r, err := session.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL, log)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

func pushMetrics(cfg config.ClientConfig, log *slog.Logger, g prometheus.Gatherer) {
	if strings.TrimSpace(cfg.PushgatewayURL) == "" {
		return
	}
	if err := push.New(cfg.PushgatewayURL, "expense_signup").Gatherer(g).Push(); err != nil {
		log.Warn("push metrics", "error", err)
	}
}

func commandWhoAmI(cfg config.ClientConfig, log *slog.Logger) error {
	store := tokenstore.NewFile(cfg.StorageFile, cfg.StorageKey)
	token, err := store.Token()
	if errors.Is(err, tokenstore.ErrNoToken) {
		return errors.New("not signed in, run 'expense signup' first")
	}
	if err != nil {
		return err
	}
	claims, err := jwt.Inspect(token)
	if err != nil {
		return fmt.Errorf("stored token is unreadable: %w", err)
	}
	fmt.Printf("user: %s\n", claims.User())
	if exp := claims.Expiry(); !exp.IsZero() {
		state := "valid"
		if time.Now().After(exp) {
			state = "expired"
		}
		fmt.Printf("expires: %s (%s)\n", exp.Format(time.RFC3339), state)
	}

	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	sessions, closeSessions, err := openSessions(cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()
	sid, err := localSessionID(store)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	user, err := session.Bind(sessions, sid).Current(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("name: %s\nemail: %s\n", user.FullName, user.Email)
	return nil
}

func commandLogout(cfg config.ClientConfig, log *slog.Logger) error {
	store := tokenstore.NewFile(cfg.StorageFile, cfg.StorageKey)
	if err := store.ClearToken(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		sessions, closeSessions, err := openSessions(cfg, log)
		if err != nil {
			return err
		}
		defer closeSessions()
		sid, err := localSessionID(store)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Bind(sessions, sid).Clear(ctx); err != nil {
			return err
		}
	}
	fmt.Println("signed out")
	return nil
}

func commandServe(cfg config.ClientConfig, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.WebAddr, "Listen address")
	apiBase := fs.String("api", "", "API base URL (default $EXPENSE_API_URL)")
	secure := fs.Bool("secure-cookies", config.GetBool("EXPENSE_SECURE_COOKIES", false), "Mark cookies Secure")
	fs.Parse(args)

	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := signup.NewMetrics(reg)
	if err != nil {
		return err
	}
	api := signup.NewAPI(client)
	submitter := signup.NewSubmitter(api, api, log, signup.WithMetrics(metrics))

	sessions, closeSessions, err := openSessions(cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	srv := web.New(submitter, sessions, log, web.WithGatherer(reg), web.WithSecureCookies(*secure))
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.WatchSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("sign-up form listening", "addr", *addr, "api", client.BaseURL())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func printUsage() {
	fmt.Printf("expense CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	expense signup --name "John" --email john@example.com [--password secret] [--photo me.png] [--api http://localhost:8000]
	expense whoami
	expense logout
	expense serve [--addr :5173] [--api http://localhost:8000] [--secure-cookies]
	expense version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
