package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/retropong/persist"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

type stubAccounts struct {
	err error
}

func (s stubAccounts) Register(context.Context, string, string) (*persist.Account, error) {
	return nil, s.err
}

func (s stubAccounts) Login(context.Context, string, string) (*persist.Account, error) {
	return nil, s.err
}

func newAuthRouter(accounts persist.Accounts) (*httprouter.Router, *sessionStore) {
	mux := httprouter.New()
	sessions := newSessionStore()
	registerAuth(&Config{}, zap.NewNop(), accounts, sessions, mux)
	return mux, sessions
}

func doJSON(mux http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()

	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestAuthFlow(t *testing.T) {
	mux, _ := newAuthRouter(persist.NewMemoryAccounts())

	rec := doJSON(mux, http.MethodPost, "/api/auth/register", `{"email":"Ace@Example.com","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body)
	}
	if resp := decodeSession(t, rec); resp.User == nil || resp.User.DisplayName != "ace" || !resp.User.Demo {
		t.Fatalf("register user = %+v", resp.User)
	}

	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	rec = doJSON(mux, http.MethodGet, "/api/auth/session", "", cookie)
	if resp := decodeSession(t, rec); resp.User == nil || resp.User.ID != persist.DemoUserID {
		t.Fatalf("session user = %+v", resp.User)
	}

	rec = doJSON(mux, http.MethodPost, "/api/auth/logout", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	if c := sessionCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Errorf("logout cookie = %+v, want expired", c)
	}

	rec = doJSON(mux, http.MethodGet, "/api/auth/session", "", cookie)
	if resp := decodeSession(t, rec); resp.User != nil {
		t.Errorf("session after logout = %+v", resp.User)
	}
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name     string
		accounts persist.Accounts
		body     string
		want     int
	}{
		{"missing password", persist.NewMemoryAccounts(), `{"email":"a@b.c"}`, http.StatusBadRequest},
		{"malformed email", persist.NewMemoryAccounts(), `{"email":"nobody","password":"x"}`, http.StatusUnauthorized},
		{"bad json", persist.NewMemoryAccounts(), `{"email":`, http.StatusBadRequest},
		{"wrong password", stubAccounts{err: persist.ErrInvalidCredentials}, `{"email":"a@b.c","password":"x"}`, http.StatusUnauthorized},
		{"store failure", stubAccounts{err: errors.New("connection refused")}, `{"email":"a@b.c","password":"x"}`, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mux, _ := newAuthRouter(tc.accounts)

			rec := doJSON(mux, http.MethodPost, "/api/auth/login", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			if sessionCookie(rec) != nil {
				t.Error("failed login set a session cookie")
			}

			var body apiError
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error == "" {
				t.Errorf("error body missing: %v", err)
			}
			if tc.want == http.StatusInternalServerError && strings.Contains(body.Error, "refused") {
				t.Error("internal error leaked to client")
			}
		})
	}
}

func TestRegisterExisting(t *testing.T) {
	mux, _ := newAuthRouter(stubAccounts{err: persist.ErrAccountExists})

	rec := doJSON(mux, http.MethodPost, "/api/auth/register", `{"email":"a@b.c","password":"x"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	sessions := newSessionStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	token, err := sessions.create(persist.Account{DisplayName: "ace"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sessions.lookup(token); !ok {
		t.Fatal("fresh session not found")
	}

	now = now.Add(sessionTTL + time.Second)
	if _, ok := sessions.lookup(token); ok {
		t.Error("expired session still valid")
	}
	if _, ok := sessions.lookup("nope"); ok {
		t.Error("unknown token accepted")
	}
}
