package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/retropong/persist"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	sessionCookieName = "retropong_session"
	sessionTTL        = 7 * 24 * time.Hour
	authTimeout       = 5 * time.Second
	maxAuthBody       = 4096
)

type session struct {
	account persist.Account
	expires time.Time
}

// sessionStore maps session cookies to logged-in accounts.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]session),
		now:      time.Now,
	}
}

func (s *sessionStore) create(acct persist.Account) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, t)
		}
	}
	s.sessions[token] = session{account: acct, expires: now.Add(sessionTTL)}

	return token, nil
}

func (s *sessionStore) lookup(token string) (persist.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return persist.Account{}, false
	}
	if s.now().After(sess.expires) {
		delete(s.sessions, token)
		return persist.Account{}, false
	}
	return sess.account, true
}

func (s *sessionStore) remove(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *sessionStore) fromRequest(r *http.Request) (persist.Account, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return persist.Account{}, false
	}
	return s.lookup(c.Value)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User *persist.Account `json:"user"`
}

func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, persist.ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.Is(err, persist.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, persist.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type authFunc func(ctx context.Context, email, password string) (*persist.Account, error)

// serveAuth handles register and login: both take credentials and open a
// session on success.
func serveAuth(cfg *Config, log *zap.Logger, sessions *sessionStore, action string, status int, fn authFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var creds credentials
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&creds); err != nil {
			_ = writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
		defer cancel()

		acct, err := fn(ctx, creds.Email, creds.Password)
		if err != nil {
			code := authErrorStatus(err)
			if code == http.StatusInternalServerError {
				log.Error("AUTH: "+action+" failed", zap.Error(err))
				_ = writeJSONError(w, code, "internal error")
				return
			}
			log.Debug("AUTH: "+action+" rejected", zap.String("client", realIP(r)), zap.Error(err))
			_ = writeJSONError(w, code, err.Error())
			return
		}

		token, err := sessions.create(*acct)
		if err != nil {
			log.Error("AUTH: session token", zap.Error(err))
			_ = writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(sessionTTL / time.Second),
			HttpOnly: true,
			Secure:   cfg.scheme() == "https",
			SameSite: http.SameSiteLaxMode,
		})

		log.Info("AUTH: "+action, zap.String("player", acct.DisplayName), zap.Bool("demo", acct.Demo))

		_ = writeJSON(w, status, sessionResponse{User: acct})
	}
}

func serveLogout(cfg *Config, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		if c, err := r.Cookie(sessionCookieName); err == nil {
			sessions.remove(c.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		_ = writeJSON(w, http.StatusOK, sessionResponse{})
	}
}

func serveSession(cfg *Config, sessions *sessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		w.Header().Set("Cache-Control", "no-store")

		var resp sessionResponse
		if acct, ok := sessions.fromRequest(r); ok {
			resp.User = &acct
		}

		_ = writeJSON(w, http.StatusOK, resp)
	}
}

func registerAuth(cfg *Config, log *zap.Logger, accounts persist.Accounts, sessions *sessionStore, mux *httprouter.Router) {
	base := cfg.prefix + "/api/auth"

	mux.POST(base+"/register", serveAuth(cfg, log, sessions, "register", http.StatusCreated, accounts.Register))
	mux.POST(base+"/login", serveAuth(cfg, log, sessions, "login", http.StatusOK, accounts.Login))
	mux.POST(base+"/logout", serveLogout(cfg, sessions))
	mux.GET(base+"/session", serveSession(cfg, sessions))
}
