package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/faouziMohamed/mail-aliases/internal/testutil"
)

// TestEndToEnd_StandardOAuth2Client runs the whole flow against a live test
// server with golang.org/x/oauth2 acting as the relying party, proving the
// wire format interoperates with a stock client library.
func TestEndToEnd_StandardOAuth2Client(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setUser(testutil.GenerateTestUser())

	ts := httptest.NewServer(env.mux)
	defer ts.Close()

	conf := &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: testutil.TestClientSecret,
		RedirectURL:  "https://example.com/callback",
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  ts.URL + AuthorizePath,
			TokenURL: ts.URL + TokenPath,
		},
	}

	// Drive the consent step the way a browser would, but stop at the
	// redirect so the code can be read from the Location header.
	browser := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	authURL := conf.AuthCodeURL("e2e-state")
	resp, err := browser.PostForm(authURL, url.Values{"button": {"allow"}})
	testutil.AssertNoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("consent POST status = %d, want 302", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, loc.Query().Get("state"), "e2e-state")
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatal("no code in consent redirect")
	}

	token, err := conf.Exchange(context.Background(), code)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(token.AccessToken), 40)
	testutil.AssertEqual(t, token.TokenType, "bearer")
	if idToken, ok := token.Extra("id_token").(string); !ok || idToken == "" {
		t.Error("id_token missing from token response extras")
	}
}
