package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"chat-sync/internal/apperrors"
)

// Result is the outcome of a successful code exchange.
type Result struct {
	Identity    string
	DisplayName string
	AvatarURL   string
}

// Exchanger turns a login auth code into a stable identity.
type Exchanger interface {
	Exchange(ctx context.Context, authCode string) (Result, error)
}

// Client calls the external identity-exchange endpoint over HTTP.
type Client struct {
	endpoint   string
	appID      string
	appSecret  string
	httpClient *http.Client
}

func NewClient(endpoint, appID, appSecret string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type exchangeResponse struct {
	OpenID    string `json:"openid"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
	ErrCode   int    `json:"errcode"`
	ErrMsg    string `json:"errmsg"`
}

// Exchange resolves authCode. Every failure is reported as an identity resolution error.
func (c *Client) Exchange(ctx context.Context, authCode string) (Result, error) {
	if authCode == "" {
		return Result{}, apperrors.NewIdentityResolutionError(errors.New("empty auth code"))
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Result{}, apperrors.NewIdentityResolutionError(err)
	}
	q := u.Query()
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)
	q.Set("js_code", authCode)
	q.Set("grant_type", "authorization_code")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, apperrors.NewIdentityResolutionError(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, apperrors.NewIdentityResolutionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, apperrors.NewIdentityResolutionError(fmt.Errorf("exchange status %d", resp.StatusCode))
	}

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, apperrors.NewIdentityResolutionError(err)
	}
	if body.ErrCode != 0 {
		return Result{}, apperrors.NewIdentityResolutionError(fmt.Errorf("exchange error %d: %s", body.ErrCode, body.ErrMsg))
	}
	if body.OpenID == "" {
		return Result{}, apperrors.NewIdentityResolutionError(errors.New("exchange returned no identity"))
	}

	return Result{Identity: body.OpenID, DisplayName: body.Nickname, AvatarURL: body.AvatarURL}, nil
}
