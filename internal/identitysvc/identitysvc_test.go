package identitysvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeUsers struct {
	username string
	roles    []string
	verified bool
	err      error
}

func (f fakeUsers) LookupUser(ctx context.Context, userID string) (string, []string, bool, error) {
	return f.username, f.roles, f.verified, f.err
}

func newTestService(t *testing.T, users UserLookup) *Service {
	t.Helper()
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}
	return New(priv, pub, users)
}

func TestResolveValidMemberToken(t *testing.T) {
	svc := newTestService(t, fakeUsers{username: "alice", roles: []string{"owner"}, verified: true})
	token, err := svc.CreateMemberToken("u1")
	if err != nil {
		t.Fatalf("creating token: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	w := httptest.NewRecorder()

	id, err := svc.Resolve(w, r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !id.IsMember() || id.UserID != "u1" || id.Username != "alice" || !id.HasRole("owner") || !id.Verified {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestResolveMissingCookieYieldsGuestAndSetsCookie(t *testing.T) {
	svc := newTestService(t, fakeUsers{})
	r := httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	w := httptest.NewRecorder()

	id, err := svc.Resolve(w, r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.IsMember() {
		t.Fatalf("expected guest identity, got member")
	}
	if id.BrowserID == "" {
		t.Fatalf("expected a minted browser id")
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "browser-id" && c.Value == id.BrowserID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected browser-id cookie to be set on the response")
	}
}

func TestResolveReusesExistingBrowserIDCookie(t *testing.T) {
	svc := newTestService(t, fakeUsers{})
	r := httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	r.AddCookie(&http.Cookie{Name: "browser-id", Value: "existing-id"})
	w := httptest.NewRecorder()

	id, err := svc.Resolve(w, r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.BrowserID != "existing-id" {
		t.Fatalf("expected existing browser id to be reused, got %q", id.BrowserID)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie to be set when one already exists")
	}
}

func TestResolveInvalidTokenFallsBackToGuest(t *testing.T) {
	svc := newTestService(t, fakeUsers{})
	r := httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: "not-a-real-token"})
	w := httptest.NewRecorder()

	id, err := svc.Resolve(w, r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.IsMember() {
		t.Fatalf("expected guest fallback for an invalid token")
	}
}
