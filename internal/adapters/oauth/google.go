package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
)

// GoogleProvider resolves a Google access token into a profile via the userinfo endpoint.
type GoogleProvider struct {
	userInfoURL string
	client      *http.Client
}

// GoogleUser represents the user info from Google
type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func NewGoogleProvider(userInfoURL string, client *http.Client) *GoogleProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{userInfoURL: userInfoURL, client: client}
}

func (g *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (model.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return model.ExternalProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return model.ExternalProfile{}, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.ExternalProfile{}, customErrors.ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.ExternalProfile{}, fmt.Errorf("google userinfo: status %d: %s", resp.StatusCode, body)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return model.ExternalProfile{}, fmt.Errorf("google userinfo: %w", err)
	}
	// неподтверждённый email не даёт права привязаться к существующему аккаунту
	if !user.VerifiedEmail {
		return model.ExternalProfile{}, customErrors.ErrInvalidCredentials
	}

	return model.ExternalProfile{
		Subject: user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
	}, nil
}
