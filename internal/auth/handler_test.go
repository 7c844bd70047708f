package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dropgate/api/internal/ratelimit"
	"dropgate/api/internal/store"
	"dropgate/api/internal/token"

	"github.com/gorilla/mux"
)

func testServer(t *testing.T, st store.Credentials, login, register *ratelimit.RouteLimiter) *mux.Router {
	t.Helper()
	issuer, err := token.NewIssuer("supersecretkeythatisatleast16byteslong")
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	h := NewHandler(st, issuer, login, register)
	r := mux.NewRouter()
	h.Routes(r)
	return r
}

func post(router *mux.Router, path, body, addr string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if addr != "" {
		req.RemoteAddr = addr
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegister_Success(t *testing.T) {
	st := store.NewMemory()
	router := testServer(t, st, nil, nil)

	rec := post(router, "/auth/register", `{"name":" Ada Lovelace ","email":"ada@example.com","password":"hunter22"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.Success || resp.Message == "" {
		t.Errorf("response=%+v, want success with message", resp)
	}

	u, err := st.FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("stored user not found: %v", err)
	}
	if u.Name != "Ada Lovelace" {
		t.Errorf("stored name=%q, want trimmed %q", u.Name, "Ada Lovelace")
	}
	if u.PasswordHash == "hunter22" || u.PasswordHash == "" {
		t.Error("password must be stored as an opaque hash")
	}
	if err := ComparePasswords(u.PasswordHash, "hunter22"); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	// Roomy limiter: every case below is a charged failure.
	register := ratelimit.NewRouteLimiter(100, time.Hour, "Too many registration attempts. Try again later.")
	router := testServer(t, store.NewMemory(), nil, register)

	cases := []struct {
		name string
		body string
	}{
		{"short name", `{"name":"A","email":"a@b.co","password":"longenough"}`},
		{"name only spaces", `{"name":"   ","email":"a@b.co","password":"longenough"}`},
		{"bad email", `{"name":"Ada","email":"not-an-email","password":"longenough"}`},
		{"email no dot", `{"name":"Ada","email":"a@host","password":"longenough"}`},
		{"long email", `{"name":"Ada","email":"` + strings.Repeat("a", 250) + `@b.co","password":"longenough"}`},
		{"short password", `{"name":"Ada","email":"a@b.co","password":"12345"}`},
		{"long password", `{"name":"Ada","email":"a@b.co","password":"` + strings.Repeat("p", 101) + `"}`},
		{"missing fields", `{"email":"a@b.co"}`},
		{"not json", `name=Ada`},
	}
	for _, tc := range cases {
		if rec := post(router, "/auth/register", tc.body, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d, want 400", tc.name, rec.Code)
		}
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	st := store.NewMemory()
	router := testServer(t, st, nil, nil)
	body := `{"name":"Ada","email":"dup@example.com","password":"hunter22"}`

	if rec := post(router, "/auth/register", body, ""); rec.Code != http.StatusOK {
		t.Fatalf("first register status=%d", rec.Code)
	}
	rec := post(router, "/auth/register", body, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second register status=%d, want 409", rec.Code)
	}
	if st.Len() != 1 {
		t.Errorf("store holds %d records, want exactly 1", st.Len())
	}
}

func TestLogin_SuccessIssuesToken(t *testing.T) {
	st := store.NewMemory()
	router := testServer(t, st, nil, nil)

	post(router, "/auth/register", `{"name":"Ada","email":"ada@example.com","password":"hunter22"}`, "")
	rec := post(router, "/auth/login", `{"email":"ada@example.com","password":"hunter22"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID    uint   `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.User.Email != "ada@example.com" || resp.User.Name != "Ada" || resp.User.ID == 0 {
		t.Errorf("user=%+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Error("response leaks the password hash")
	}

	issuer, _ := token.NewIssuer("supersecretkeythatisatleast16byteslong")
	claims, err := issuer.Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.ID != resp.User.ID || claims.Name != "Ada" || claims.Email != "ada@example.com" {
		t.Errorf("claims={%d %q %q}, want stored user fields", claims.ID, claims.Name, claims.Email)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != token.SessionTTL {
		t.Errorf("token lifetime=%v, want %v", got, token.SessionTTL)
	}
}

func TestLogin_GenericUnauthorized(t *testing.T) {
	st := store.NewMemory()
	router := testServer(t, st, nil, nil)
	post(router, "/auth/register", `{"name":"Ada","email":"ada@example.com","password":"hunter22"}`, "")

	noSuchUser := post(router, "/auth/login", `{"email":"ghost@example.com","password":"hunter22"}`, "")
	wrongPassword := post(router, "/auth/login", `{"email":"ada@example.com","password":"wrongpass"}`, "")

	if noSuchUser.Code != http.StatusUnauthorized || wrongPassword.Code != http.StatusUnauthorized {
		t.Fatalf("statuses=%d/%d, want 401/401", noSuchUser.Code, wrongPassword.Code)
	}
	// The two failure modes must be indistinguishable on the wire.
	if noSuchUser.Body.String() != wrongPassword.Body.String() {
		t.Errorf("bodies differ:\n%q\n%q", noSuchUser.Body.String(), wrongPassword.Body.String())
	}
}

func TestLogin_MissingSecretIs500(t *testing.T) {
	h := NewHandler(store.NewMemory(), nil, nil, nil)
	r := mux.NewRouter()
	h.Routes(r)

	rec := post(r, "/auth/login", `{"email":"a@b.co","password":"hunter22"}`, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status=%d, want 500", rec.Code)
	}
}

func TestLogin_RouteLimiter(t *testing.T) {
	st := store.NewMemory()
	login := ratelimit.NewRouteLimiter(10, 10*time.Minute, "Too many login attempts. Try again in a few minutes.")
	router := testServer(t, st, login, nil)

	addr := "203.0.113.5:4321"
	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		rec = post(router, "/auth/login", `{"email":"ghost@example.com","password":"hunter22"}`, addr)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("11th attempt status=%d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login attempts") {
		t.Errorf("429 body=%q, want route-specific message", rec.Body.String())
	}

	// A different client key is unaffected.
	other := post(router, "/auth/login", `{"email":"ghost@example.com","password":"hunter22"}`, "203.0.113.99:4321")
	if other.Code != http.StatusUnauthorized {
		t.Errorf("other client status=%d, want 401", other.Code)
	}
}

func TestRegister_RouteLimiter(t *testing.T) {
	st := store.NewMemory()
	register := ratelimit.NewRouteLimiter(5, 60*time.Minute, "Too many registration attempts. Try again later.")
	router := testServer(t, st, nil, register)

	addr := "203.0.113.6:4321"
	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		// Invalid payloads: each attempt fails and is charged.
		rec = post(router, "/auth/register", `{"name":"A","email":"x","password":"1"}`, addr)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt status=%d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "registration attempts") {
		t.Errorf("429 body=%q, want route-specific message", rec.Body.String())
	}
}

func TestLogin_SuccessDoesNotBurnQuota(t *testing.T) {
	st := store.NewMemory()
	login := ratelimit.NewRouteLimiter(3, 10*time.Minute, "Too many login attempts. Try again in a few minutes.")
	router := testServer(t, st, login, nil)

	post(router, "/auth/register", `{"name":"Ada","email":"ada@example.com","password":"hunter22"}`, "")

	// Well past the quota in successful logins: none of them count.
	for i := 0; i < 5; i++ {
		rec := post(router, "/auth/login", `{"email":"ada@example.com","password":"hunter22"}`, "203.0.113.7:1")
		if rec.Code != http.StatusOK {
			t.Fatalf("successful login %d status=%d", i+1, rec.Code)
		}
	}

	// Two failures, then a success: the eventual legitimate login passes.
	post(router, "/auth/login", `{"email":"ada@example.com","password":"wrongpass"}`, "203.0.113.8:1")
	post(router, "/auth/login", `{"email":"ada@example.com","password":"wrongpass"}`, "203.0.113.8:1")
	rec := post(router, "/auth/login", `{"email":"ada@example.com","password":"hunter22"}`, "203.0.113.8:1")
	if rec.Code != http.StatusOK {
		t.Errorf("legitimate retry status=%d, want 200", rec.Code)
	}
}

func TestRateHeadersPresent(t *testing.T) {
	router := testServer(t, store.NewMemory(), nil, nil)
	rec := post(router, "/auth/login", `{"email":"ghost@example.com","password":"hunter22"}`, "")
	for _, key := range []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"} {
		if rec.Header().Get(key) == "" {
			t.Errorf("missing %s header", key)
		}
	}
}
