package weixin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sengeiou/life-helper-server/credential"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.weixin.qq.com"

const maxResponseBytes = 4 << 20

// Config holds the app credentials and transport settings.
type Config struct {
	AppID     string
	AppSecret string
	// BaseURL overrides DefaultBaseURL, mainly for tests.
	BaseURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Client talks to the WeChat server API.
type Client struct {
	cfg  Config
	http *http.Client
	base string
}

// NewClient validates cfg and returns a [Client].
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, errors.New("weixin: app id and secret are required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("weixin: invalid base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: hc, base: base}, nil
}

type apiStatus struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (s apiStatus) err(op string) error {
	if s.ErrCode == 0 {
		return nil
	}
	return &APIError{Op: op, Code: s.ErrCode, Message: s.ErrMsg}
}

type tokenResponse struct {
	apiStatus
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IssueCredential fetches a new app access token. It satisfies
// [credential.Issuer].
func (c *Client) IssueCredential(ctx context.Context) (credential.Credential, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", c.cfg.AppID)
	q.Set("secret", c.cfg.AppSecret)

	var resp tokenResponse
	if err := c.getJSON(ctx, "token", "/cgi-bin/token", q, &resp); err != nil {
		return credential.Credential{}, err
	}
	if err := resp.err("token"); err != nil {
		return credential.Credential{}, err
	}
	if resp.AccessToken == "" {
		return credential.Credential{}, fmt.Errorf("%w: empty access_token", ErrUnavailable)
	}
	return credential.Credential{
		Value: resp.AccessToken,
		TTL:   time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// Probe checks accessToken against getcallbackip, the cheapest call that
// requires a valid token. It satisfies [credential.Prober].
func (c *Client) Probe(ctx context.Context, accessToken string) error {
	q := url.Values{}
	q.Set("access_token", accessToken)

	var resp apiStatus
	if err := c.getJSON(ctx, "getcallbackip", "/cgi-bin/getcallbackip", q, &resp); err != nil {
		return err
	}
	return resp.err("getcallbackip")
}

// Session is the jscode2session answer.
type Session struct {
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	SessionKey string `json:"session_key"`
}

type sessionResponse struct {
	apiStatus
	Session
}

// Code2Session exchanges a wx.login code.
func (c *Client) Code2Session(ctx context.Context, code string) (Session, error) {
	if code == "" {
		return Session{}, ErrCodeInvalid
	}
	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("secret", c.cfg.AppSecret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")

	var resp sessionResponse
	if err := c.getJSON(ctx, "jscode2session", "/sns/jscode2session", q, &resp); err != nil {
		return Session{}, err
	}
	if err := resp.err("jscode2session"); err != nil {
		return Session{}, err
	}
	if resp.OpenID == "" {
		return Session{}, fmt.Errorf("%w: empty openid", ErrCodeInvalid)
	}
	return resp.Session, nil
}

// ExchangeCodeForIdentity returns the openid behind code.
func (c *Client) ExchangeCodeForIdentity(ctx context.Context, code string) (string, error) {
	s, err := c.Code2Session(ctx, code)
	if err != nil {
		return "", err
	}
	return s.OpenID, nil
}

// WxacodeRequest is the body of getwxacodeunlimit.
type WxacodeRequest struct {
	Scene      string `json:"scene"`
	Page       string `json:"page,omitempty"`
	CheckPath  bool   `json:"check_path"`
	EnvVersion string `json:"env_version,omitempty"`
	Width      int    `json:"width,omitempty"`
	IsHyaline  bool   `json:"is_hyaline,omitempty"`
}

// GetUnlimitedWxacode renders a mini-program code and returns the image
// bytes.
func (c *Client) GetUnlimitedWxacode(ctx context.Context, accessToken string, req WxacodeRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	u := c.endpoint("/wxa/getwxacodeunlimit", url.Values{"access_token": {accessToken}})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, contentType, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	// Errors come back as JSON; images as image/*.
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" || mediaType == "text/plain" || (len(raw) > 0 && raw[0] == '{') {
		var status apiStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("%w: decode getwxacodeunlimit: %v", ErrUnavailable, err)
		}
		if err := status.err("getwxacodeunlimit"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: getwxacodeunlimit returned no image", ErrUnavailable)
	}
	return raw, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	return c.base + path + "?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	raw, _, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, op, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, "", fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: http %d", ErrRejected, resp.StatusCode)
	}
	return raw, resp.Header.Get("Content-Type"), nil
}
