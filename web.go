package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/retropong/persist"
	"github.com/Seednode/retropong/pong"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, log *zap.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("retropong v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		log.Debug("SERVE: version page",
			zap.Int("bytes", written),
			zap.String("client", realIP(r)),
			zap.Duration("elapsed", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}

// openStores picks PostgreSQL when a database is configured and the in-memory
// demo stores otherwise. The returned func releases the stores.
func openStores(ctx context.Context, cfg *Config, log *zap.Logger) (persist.Accounts, persist.Scores, func(), error) {
	if cfg.databaseURL == "" {
		scores, err := persist.NewDemoScores()
		if err != nil {
			return nil, nil, nil, err
		}

		log.Warn("AUTH: no database configured, running in demo mode")

		return persist.NewMemoryAccounts(), scores, func() {}, nil
	}

	db, err := persist.NewDB(ctx, persist.DBConfig{
		DSN:             cfg.databaseURL,
		MaxConns:        10,
		MinConns:        1,
		ConnMaxLifetime: time.Hour,
	}, log.Named("db"))
	if err != nil {
		return nil, nil, nil, err
	}

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	return persist.NewAccountRepo(db), persist.NewScoreRepo(db), db.Close, nil
}

// loadRules reads the rules file and makes sure a match can be built from it,
// so a broken AI script fails at startup instead of on the first match.
func loadRules(cfg *Config) (pong.Rules, error) {
	rules, err := pong.LoadRules(cfg.rules)
	if err != nil {
		return pong.Rules{}, err
	}

	var aiErr error
	m, err := pong.NewMatch(rules, pong.WithErrorHandler(func(err error) { aiErr = err }))
	if err != nil {
		return pong.Rules{}, fmt.Errorf("build match: %w", err)
	}
	defer func() { _ = m.Close() }()

	// one computer move exercises the AI script
	if err := m.Start(pong.SinglePlayer); err != nil {
		return pong.Rules{}, err
	}
	m.Tick()
	if aiErr != nil {
		return pong.Rules{}, fmt.Errorf("ai script: %w", aiErr)
	}

	return rules, nil
}

// drainErrors logs handler write failures until stop is closed.
func drainErrors(log *zap.Logger, errs <-chan error, stop <-chan struct{}) {
	for {
		select {
		case err := <-errs:
			log.Debug("SERVE: write failed", zap.Error(err))
		case <-stop:
			return
		}
	}
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("START: retropong", zap.String("version", releaseVersion))

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}

	accounts, scores, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error("SERVE: panic", zap.Any("panic", i), zap.String("path", r.URL.Path))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)
	stop := make(chan struct{})
	defer close(stop)
	go drainErrors(log, errs, stop)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.svg", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, log, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	sessions := newSessionStore()

	registerAuth(cfg, log.Named("auth"), accounts, sessions, mux)

	registerLeaderboard(cfg, log.Named("leaderboard"), scores, mux)

	gm := registerPongGame(cfg, log.Named("games"), rules, scores, sessions, "/pong", mux)
	defer gm.Close()

	listenErr := make(chan error, 1)
	go func() {
		var err error
		log.Info("SERVE: listening",
			zap.String("url", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)),
		)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	log.Info("STOP: retropong")

	return nil
}
