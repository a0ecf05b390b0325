package http

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrNoIDToken = errors.New("google token response carries no id_token")

// GoogleLogin runs the authorization code flow and hands the ID token to the
// invoicing API, which verifies it.
type GoogleLogin struct {
	config *oauth2.Config
}

func NewGoogleLogin(clientID, clientSecret, redirectURL string) *GoogleLogin {
	return &GoogleLogin{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

func (g *GoogleLogin) ClientID() string {
	return g.config.ClientID
}

// AuthCodeURL is the Google consent page for state.
func (g *GoogleLogin) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// IDToken exchanges the callback code and returns the OpenID Connect ID token.
func (g *GoogleLogin) IDToken(ctx context.Context, code string) (string, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if strings.TrimSpace(raw) == "" {
		return "", ErrNoIDToken
	}
	return raw, nil
}
