package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/taskdeck/deck/internal/config"
)

// Backend auth cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// loadSession seeds the cookie jar from the session file. Cookies issued for
// a different backend are ignored.
func (c *Client) loadSession() error {
	s, err := config.LoadSession(c.sessionPath)
	if err != nil {
		return err
	}
	if s.Empty() || (s.APIURL != "" && s.APIURL != c.BaseURL()) {
		return nil
	}
	c.setCookies(s.AccessToken, s.RefreshToken)
	return nil
}

// adoptRotatedSession installs the session file's tokens when they differ
// from the jar's access token.
func (c *Client) adoptRotatedSession() bool {
	s, err := config.LoadSession(c.sessionPath)
	if err != nil || s.Empty() || (s.APIURL != "" && s.APIURL != c.BaseURL()) {
		return false
	}
	access, _ := c.Tokens()
	if s.AccessToken == "" || s.AccessToken == access {
		return false
	}
	c.setCookies(s.AccessToken, s.RefreshToken)
	return true
}

// saveSession writes the jar's current auth cookies to the session file.
func (c *Client) saveSession() error {
	access, refresh := c.Tokens()
	return config.SaveSession(c.sessionPath, &config.Session{
		APIURL:       c.BaseURL(),
		AccessToken:  access,
		RefreshToken: refresh,
		UpdatedAt:    time.Now().UTC(),
	})
}

func (c *Client) setCookies(access, refresh string) {
	var cookies []*http.Cookie
	if access != "" {
		cookies = append(cookies, &http.Cookie{Name: AccessCookie, Value: access, Path: "/"})
	}
	if refresh != "" {
		cookies = append(cookies, &http.Cookie{Name: RefreshCookie, Value: refresh, Path: "/"})
	}
	if len(cookies) > 0 {
		c.httpClient.Jar.SetCookies(c.base, cookies)
	}
}

// Tokens returns the auth cookie values currently held by the client.
func (c *Client) Tokens() (access, refresh string) {
	for _, ck := range c.httpClient.Jar.Cookies(c.base) {
		switch ck.Name {
		case AccessCookie:
			access = ck.Value
		case RefreshCookie:
			refresh = ck.Value
		}
	}
	return access, refresh
}

// SetTokens installs auth cookies obtained elsewhere (e.g. copied from a
// browser after the OAuth login) and persists them when a session file is set.
func (c *Client) SetTokens(access, refresh string) error {
	c.setCookies(access, refresh)
	if c.sessionPath == "" {
		return nil
	}
	if err := c.saveSession(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Logout ends the server session and forgets the local cookies.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, LogoutPath, nil, nil)
	c.httpClient.Jar.SetCookies(c.base, []*http.Cookie{
		{Name: AccessCookie, Value: "", Path: "/", MaxAge: -1},
		{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1},
	})
	if c.sessionPath != "" {
		if cerr := config.ClearSession(c.sessionPath); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
