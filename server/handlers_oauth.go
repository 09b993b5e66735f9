package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/twitchbot/oauth"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/twitchapi"
)

// Account is an OAuth-linkable Twitch identity.
type Account struct {
	Config *oauth2.Config
	Source *oauth.Source
}

const oauthStateTTL = 10 * time.Minute

// HandleTwitchOAuthStart redirects to Twitch to authorize the named account.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("account")
	acct, ok := h.opts.Accounts[name]
	if !ok || acct.Config == nil || acct.Source == nil {
		http.Error(w, "unknown or unconfigured account "+name, http.StatusNotFound)
		return
	}
	if acct.Config.ClientID == "" || acct.Config.RedirectURL == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, name, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, twitchapi.AuthorizeURL(acct.Config, st), http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the authorization code and stores the
// token for the account the state was issued to.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Error(w, "authorization denied: "+e, http.StatusBadRequest)
		return
	}
	code, st := q.Get("code"), q.Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	name, ok := h.takeOAuthState(st)
	if !ok {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	acct := h.opts.Accounts[name]

	ctx := r.Context()
	tok, err := acct.Config.Exchange(ctx, code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	scope := tokenScope(tok)
	if err := acct.Source.Set(ctx, tok, scope); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("oauth account linked", slog.String("account", name), slog.String("component", "oauth"))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"account": name,
		"scope":   scope,
		"expiry":  tok.Expiry,
	})
}

// tokenScope extracts the granted scopes; Twitch returns them as a JSON array.
func tokenScope(tok *oauth2.Token) string {
	switch v := tok.Extra("scope").(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			parts = append(parts, fmt.Sprint(s))
		}
		return strings.Join(parts, " ")
	}
	return ""
}
