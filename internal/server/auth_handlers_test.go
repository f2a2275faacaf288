package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dhernos/dynpages/internal/auth"
	"github.com/dhernos/dynpages/internal/config"
)

func TestSignupSessionSignout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": " Ada@Example.com ", "password": "correct horse"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup = %d %s", rec.Code, rec.Body)
	}
	cookie := sessionCookie(rec)
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Fatalf("cookie = %+v", cookie)
	}
	if cookie.Secure {
		t.Error("cookie should not be Secure outside production")
	}

	var signup struct {
		User userResponse `json:"user"`
	}
	decode(t, rec, &signup)
	if signup.User.Email != "ada@example.com" || signup.User.ID == 0 {
		t.Errorf("user = %+v", signup.User)
	}

	rec = env.do(http.MethodGet, "/api/auth/session", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("session = %d %s", rec.Code, rec.Body)
	}
	var sess struct {
		User      userResponse `json:"user"`
		ExpiresAt string       `json:"expiresAt"`
	}
	decode(t, rec, &sess)
	if sess.User.ID != signup.User.ID || sess.ExpiresAt == "" {
		t.Errorf("session body = %+v", sess)
	}

	rec = env.do(http.MethodPost, "/api/auth/signout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("signout = %d", rec.Code)
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Errorf("signout cookie = %+v", cleared)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	env.signup("taken@example.com")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{`, "Invalid request body"},
		{"bad email", `{"email":"nope","password":"correct horse"}`, "Invalid input"},
		{"short password", `{"email":"a@example.com","password":"short"}`, "Invalid input"},
		{"long password", `{"email":"a@example.com","password":"` + strings.Repeat("x", 101) + `"}`, "Invalid input"},
		{"existing", `{"email":"TAKEN@example.com","password":"correct horse"}`, "User with this email already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/signup", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := errorMessage(t, rec); got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSigninUniformFailure(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com")

	wrong := env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "ada@example.com", "password": "wrong password"}, nil)
	unknown := env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "bob@example.com", "password": "correct horse"}, nil)
	for name, rec := range map[string]int{"wrong": wrong.Code, "unknown": unknown.Code} {
		if rec != http.StatusUnauthorized {
			t.Errorf("%s password status = %d", name, rec)
		}
	}
	if errorMessage(t, wrong) != "Invalid email or password" || wrong.Body.String() != unknown.Body.String() {
		t.Errorf("bodies differ: %q vs %q", wrong.Body, unknown.Body)
	}

	ok := env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "ADA@example.com", "password": "correct horse"}, nil)
	if ok.Code != http.StatusOK || sessionCookie(ok) == nil {
		t.Fatalf("signin = %d %s", ok.Code, ok.Body)
	}
}

func TestSessionRejectsBadCookies(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup("ada@example.com")

	if rec := env.do(http.MethodGet, "/api/auth/session", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no cookie = %d", rec.Code)
	}

	tampered := *cookie
	tampered.Value = cookie.Value[:len(cookie.Value)-2] + "xx"
	if rec := env.do(http.MethodGet, "/api/auth/session", nil, &tampered); rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered = %d", rec.Code)
	}

	env.clock.Advance(time.Hour + time.Second)
	if rec := env.do(http.MethodGet, "/api/pages", nil, cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("expired = %d", rec.Code)
	}
}

func TestSessionRefreshedAfterHalfLife(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup("ada@example.com")

	if rec := env.do(http.MethodGet, "/api/auth/session", nil, cookie); sessionCookie(rec) != nil {
		t.Error("fresh session should not be reissued")
	}

	env.clock.Advance(31 * time.Minute)
	rec := env.do(http.MethodGet, "/api/auth/session", nil, cookie)
	fresh := sessionCookie(rec)
	if rec.Code != http.StatusOK || fresh == nil {
		t.Fatalf("refresh = %d cookie=%v", rec.Code, fresh)
	}

	env.clock.Advance(45 * time.Minute)
	if rec := env.do(http.MethodGet, "/api/auth/session", nil, fresh); rec.Code != http.StatusOK {
		t.Errorf("refreshed cookie rejected: %d", rec.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.Limits.AuthRateLimit = 2 })
	body := map[string]string{"email": "ada@example.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodPost, "/api/auth/signin", body, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d", i+1, rec.Code)
		}
	}
	rec := env.do(http.MethodPost, "/api/auth/signin", body, nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third attempt = %d headers=%v", rec.Code, rec.Header())
	}
}

func TestAuthEventsAudited(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Audit = &auth.AuditLogger{Logger: zap.New(core)}
	})

	cookie := env.signup("ada@example.com")
	env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "ada@example.com", "password": "nope nope"}, nil)
	env.do(http.MethodPost, "/api/auth/signout", nil, cookie)

	var events []string
	for _, e := range logs.FilterMessage("auth event").All() {
		events = append(events, e.ContextMap()["event"].(string))
	}
	want := []string{auth.EventSignup, auth.EventSigninFailure, auth.EventSignout}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}
