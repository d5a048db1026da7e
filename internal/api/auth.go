package api

import (
	"context"
	"net/http"

	"commenthub/pkg/models"
)

// Auth endpoints

// Login exchanges credentials for a token pair
func (c *Client) Login(ctx context.Context, creds models.LoginRequest) (*models.TokenPair, error) {
	var tokens models.TokenPair
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/token/",
		Body:   JSONBody{Value: creds},
	}, &tokens)
	if err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		return nil, models.NewProtocolError(models.ErrCodeDecode, "token response has no access token", nil)
	}
	return &tokens, nil
}

// RefreshToken mints a new access token. The returned pair's Refresh is empty
// unless the service rotated it.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (*models.TokenPair, error) {
	var tokens models.TokenPair
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/token/refresh/",
		Body:   JSONBody{Value: models.RefreshRequest{Refresh: refresh}},
	}, &tokens)
	if err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		return nil, models.NewProtocolError(models.ErrCodeDecode, "refresh response has no access token", nil)
	}
	return &tokens, nil
}

// CurrentUser fetches the profile owning accessToken
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	var user models.User
	err := c.Do(ctx, Request{
		Method:      http.MethodGet,
		Path:        "/user/me/",
		BearerToken: accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates a new account. It does not log in.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var user models.User
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/user/register/",
		Body:   JSONBody{Value: req},
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
