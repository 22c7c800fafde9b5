package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func testClient(tokenURL, userURL string) *Client {
	return NewClient(Config{
		ClientID:     "app-1",
		ClientSecret: "secret",
		RedirectURI:  "https://example.com/callback",
	}).WithEndpoints(tokenURL, userURL)
}

func TestAuthURL(t *testing.T) {
	c := testClient("", "")
	raw := c.AuthURL("xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "app-1" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("scope") != "identify" || q.Get("state") != "xyz" {
		t.Fatalf("unexpected query: %v", q)
	}
}

func TestExchangeAndFetchUser(t *testing.T) {
	var gotForm url.Values
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"access_token":"tok-123"}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer token.Close()

	user := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"111222333","username":"alice","discriminator":"0","avatar":"abc"}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer user.Close()

	c := testClient(token.URL, user.URL)
	ctx := context.Background()

	accessToken, err := c.Exchange(ctx, "the-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if accessToken != "tok-123" {
		t.Fatalf("unexpected token: %q", accessToken)
	}
	if gotForm.Get("code") != "the-code" || gotForm.Get("grant_type") != "authorization_code" {
		t.Fatalf("unexpected form: %v", gotForm)
	}

	profile, err := c.FetchUser(ctx, accessToken)
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if profile.ID != "111222333" || profile.Username != "alice" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if !strings.Contains(profile.Avatar, "111222333/abc.png") {
		t.Fatalf("unexpected avatar: %q", profile.Avatar)
	}
}

func TestExchangeRejected(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		if _, err := w.Write([]byte(`{"error":"invalid_grant"}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer token.Close()

	c := testClient(token.URL, "")
	if _, err := c.Exchange(context.Background(), "bad-code"); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("err=%v, want ErrExchangeFailed", err)
	}
}
