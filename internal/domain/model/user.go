package model

import (
	"log/slog"
	"time"
)

// UserToken is issued by the authorization-code exchange for a logged-in user.
type UserToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiresIn    int      `json:"expires_in"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
}

// TwitchUser is the profile of a user who completed the login flow.
type TwitchUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
	Email           string `json:"email,omitempty"`
}

// UserCredential is the stored form of a user's token, kept for calls made
// on that user's behalf until logout.
type UserCredential struct {
	UserID       string
	Login        string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// NewUserCredential binds tok to user at now.
func NewUserCredential(user *TwitchUser, tok *UserToken, now time.Time) *UserCredential {
	return &UserCredential{
		UserID:       user.ID,
		Login:        user.Login,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       tok.Scope,
		ExpiresAt:    now.Add(time.Duration(tok.ExpiresIn) * time.Second),
		UpdatedAt:    now,
	}
}

// IsExpired reports whether the access token is past its expiry at now.
func (c *UserCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// LogValue keeps both tokens out of logs.
func (c *UserCredential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", c.UserID),
		slog.String("access_token", RedactSecret(c.AccessToken)),
		slog.Time("expires_at", c.ExpiresAt),
	)
}
