package postgrest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gotruetypes "github.com/supabase-community/gotrue-go/types"

	"github.com/goliatone/go-recipe-query/auth"
)

const metaDisplayName = "display_name"

func toUser(u gotruetypes.User) auth.User {
	name, _ := u.UserMetadata[metaDisplayName].(string)
	return auth.User{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: name,
		CreatedAt:   u.CreatedAt.UTC(),
	}
}

func (c *Client) session(body gotruetypes.Session) auth.Session {
	s := auth.Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		User:         toUser(body.User),
	}
	switch {
	case body.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(body.ExpiresAt, 0).UTC()
	case body.ExpiresIn > 0:
		s.ExpiresAt = c.clock.Now().Add(time.Duration(body.ExpiresIn) * time.Second).UTC()
	}
	return s
}

func (c *Client) SignUp(ctx context.Context, in auth.SignUpInput) (auth.Session, error) {
	req := gotruetypes.SignupRequest{
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	}
	if in.DisplayName != "" {
		req.Data = map[string]any{metaDisplayName: in.DisplayName}
	}

	resp, err := c.authClient(ctx, "").Signup(req)
	if err != nil {
		return auth.Session{}, authError(err)
	}
	if resp.AccessToken == "" {
		// email confirmation pending; there is no session to hand back
		return auth.Session{}, auth.ErrNotAuthenticated
	}

	s := c.session(resp.Session)
	c.SetAccessToken(s.AccessToken)
	return s, nil
}

func (c *Client) SignIn(ctx context.Context, in auth.SignInInput) (auth.Session, error) {
	resp, err := c.authClient(ctx, "").SignInWithEmailPassword(strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		return auth.Session{}, authError(err)
	}

	s := c.session(resp.Session)
	c.SetAccessToken(s.AccessToken)
	return s, nil
}

// SignOut revokes the session server-side and drops the client's token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if c.AccessToken() == accessToken {
		c.SetAccessToken("")
	}
	if err := c.authClient(ctx, accessToken).Logout(); err != nil {
		return authError(err)
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (auth.User, error) {
	if accessToken == "" {
		return auth.User{}, auth.ErrNotAuthenticated
	}

	resp, err := c.authClient(ctx, accessToken).GetUser()
	if err != nil {
		return auth.User{}, authError(err)
	}
	c.SetAccessToken(accessToken)
	return toUser(resp.User), nil
}

func authError(err error) error {
	if errors.Is(err, gotruetypes.ErrInvalidTokenRequest) {
		return auth.ErrInvalidCredentials
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == CodeUserAlreadyExists:
		return auth.ErrEmailTaken
	case apiErr.Code == CodeInvalidCredentials, apiErr.Code == CodeInvalidGrant:
		return auth.ErrInvalidCredentials
	case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
		return auth.ErrNotAuthenticated
	}
	return classify(err)
}
