package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"fatture/internal/core"
)

// Credentials is the body of POST /users/authenticate. Either Email and
// Password or a Google ID token in Credential must be set.
type Credentials struct {
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	Credential string `json:"credential,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
}

// NewUser is the body of POST /users/create.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// SettingsUpdate carries the fields of PUT /users/{id} the settings page edits.
type SettingsUpdate struct {
	Name                     string
	Email                    string
	TaxDownPaymentPercentage float64
	MonthlySocialSecurity    core.Money
}

var ErrEmptyToken = errors.New("authentication returned an empty token")

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.Credential == "" && (strings.TrimSpace(creds.Email) == "" || creds.Password == "") {
		return "", &core.ValidationError{Field: "credentials", Message: "email and password or a Google credential are required"}
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "authenticate", http.MethodPost, "/users/authenticate", "", creds, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

func (c *Client) CreateUser(ctx context.Context, u NewUser) error {
	if strings.TrimSpace(u.Email) == "" {
		return &core.ValidationError{Field: "email", Message: "email is required"}
	}
	return c.do(ctx, "create user", http.MethodPost, "/users/create", "", u, nil)
}

// ListUsers returns the users matching userID, or all users visible to the
// token when userID is empty.
func (c *Client) ListUsers(ctx context.Context, token, userID string) ([]core.UserSettings, error) {
	path := "/users/list"
	if userID != "" {
		path += "?" + url.Values{"user_id": {userID}}.Encode()
	}
	var wire []userWire
	if err := c.do(ctx, "list users", http.MethodGet, path, token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("user", wire, userWire.toCore)
}

// UserSettings returns the settings of a single user.
func (c *Client) UserSettings(ctx context.Context, token, userID string) (core.UserSettings, error) {
	users, err := c.ListUsers(ctx, token, userID)
	if err != nil {
		return core.UserSettings{}, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	if len(users) > 0 {
		// the list endpoint filters server side and does not always echo the id
		return users[0], nil
	}
	return core.UserSettings{}, &Error{Op: "user settings", StatusCode: http.StatusNotFound, Message: "user " + userID + " not found"}
}

func (c *Client) UpdateUser(ctx context.Context, token, userID string, upd SettingsUpdate) error {
	settings := core.UserSettings{
		ID:                       userID,
		TaxDownPaymentPercentage: upd.TaxDownPaymentPercentage,
		MonthlySocialSecurity:    upd.MonthlySocialSecurity,
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	body := userWire{
		Name:                         upd.Name,
		Email:                        upd.Email,
		TaxDownPaymentPercentage:     NumberFromFloat(upd.TaxDownPaymentPercentage),
		MonthlySocialSecurityPayment: NumberFromMoney(upd.MonthlySocialSecurity),
	}
	return c.do(ctx, "update user", http.MethodPut, "/users/"+escape(userID), token, body, nil)
}

func (c *Client) DeactivateUser(ctx context.Context, token, userID string) error {
	return c.do(ctx, "deactivate user", http.MethodPut, "/users/deactivate/"+escape(userID), token, nil, nil)
}
