package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/useragent"
)

// Identity is the per-account browser context a client impersonates.
type Identity struct {
	Proxy     string
	UserAgent string
	Token     string
}

// Client wraps all calls to the webmail API for one account identity:
// fixed browser headers, assigned proxy, cookie auth, bounded timeout and
// transport-level retries with exponential backoff. HTTP-level failures
// (non-2xx, non-JSON body) become *APIError and are not retried.
type Client struct {
	cfg  config.UpstreamConfig
	id   Identity
	bus  *logbus.Bus
	http *resty.Client
}

func New(cfg config.UpstreamConfig, id Identity, limiter *rate.Limiter, bus *logbus.Bus) (*Client, error) {
	id.UserAgent = useragent.Normalize(id.UserAgent)

	retryCount := cfg.Retry.Count
	if retryCount <= 0 {
		retryCount = 2
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(retryCount).
		SetRetryWaitTime(cfg.Retry.Wait()).
		SetRetryMaxWaitTime(cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only transport failures (timeouts, connection resets) are
			// retried; application-level errors are surfaced as-is.
			return err != nil
		}).
		SetHeaders(browserHeaders(id.UserAgent))

	if id.Proxy != "" {
		p, err := NormalizeProxy(id.Proxy, "socks5")
		if err != nil {
			return nil, err
		}
		client.SetProxy(p)
	}

	c := &Client{cfg: cfg, id: id, bus: bus, http: client}
	if id.Token != "" {
		c.SetToken(id.Token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if limiter != nil {
			if err := limiter.Wait(req.Context()); err != nil {
				return err
			}
		}
		if bus != nil {
			bus.Log("debug", "upstream request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})

	return c, nil
}

// SetToken installs the auth cookie used by all subsequent calls.
func (c *Client) SetToken(token string) {
	c.id.Token = token
	c.http.SetHeader("cookie", "token="+token+";")
}

func (c *Client) Token() string { return c.id.Token }

func browserHeaders(userAgent string) map[string]string {
	return map[string]string{
		"accept":             "application/json",
		"accept-language":    "en-US,en;q=0.9",
		"cache-control":      "no-cache",
		"content-type":       "application/json",
		"origin":             "https://ethermail.io",
		"pragma":             "no-cache",
		"priority":           "u=1, i",
		"referer":            "https://ethermail.io/accounts/login?redirect=%252Fwebmail",
		"sec-ch-ua":          `"Chromium";v="130", "Google Chrome";v="130", "Not?A_Brand";v="99"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-origin",
		"sec-gpc":            "1",
		"user-agent":         userAgent,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &APIError{Status: resp.StatusCode(), Body: "invalid JSON response"}
		}
	}
	return nil
}

type nonceReq struct {
	WalletAddress string `json:"walletAddress"`
}

type nonceResp struct {
	Success bool  `json:"success"`
	Nonce   int64 `json:"nonce"`
}

// GetNonce requests a single-use login nonce for the wallet address.
func (c *Client) GetNonce(ctx context.Context, address string) (int64, error) {
	var resp nonceResp
	if err := c.doJSON(ctx, http.MethodPost, "auth/nonce", nonceReq{WalletAddress: address}, nil, &resp); err != nil {
		return 0, fmt.Errorf("nonce request failed: %w", err)
	}
	return resp.Nonce, nil
}

// ConsentMessage is the fixed-format text signed during login.
func ConsentMessage(nonce int64) string {
	return fmt.Sprintf("By signing this message you agree to the Terms and Conditions and Privacy Policy\n\nNONCE: %d", nonce)
}

type loginReq struct {
	IsMPC       bool   `json:"isMPC"`
	Web3Address string `json:"web3Address"`
	Signature   string `json:"signature"`
}

type loginResp struct {
	Token string `json:"token"`
}

// Login submits the signed consent message and returns the auth token.
func (c *Client) Login(ctx context.Context, address, signature string) (string, error) {
	var resp loginResp
	err := c.doJSON(ctx, http.MethodPost, "auth/login", loginReq{
		IsMPC:       false,
		Web3Address: address,
		Signature:   signature,
	}, nil, &resp)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	if resp.Token == "" {
		return "", &APIError{Body: "no token in login response"}
	}
	return resp.Token, nil
}

type community struct {
	TenantID string `json:"tenant_id"`
}

// Communities lists available tenant ids, newest first as served.
func (c *Client) Communities(ctx context.Context, filter string, limit int) ([]string, error) {
	if filter == "" {
		filter = "show"
	}
	if limit <= 0 {
		limit = 12
	}
	var resp []community
	err := c.doJSON(ctx, http.MethodGet, "communities", nil, map[string]string{
		"filter": filter,
		"limit":  fmt.Sprintf("%d", limit),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("communities request failed: %w", err)
	}
	ids := make([]string, 0, len(resp))
	for _, comm := range resp {
		ids = append(ids, comm.TenantID)
	}
	return ids, nil
}

type onboardingReq struct {
	Communities []string `json:"communities"`
	Email       string   `json:"email"`
}

type onboardingResp struct {
	Success bool `json:"success"`
}

// Onboard associates the account with community ids and its email alias.
func (c *Client) Onboard(ctx context.Context, communities []string, email string) (bool, error) {
	var resp onboardingResp
	err := c.doJSON(ctx, http.MethodPost, "users/onboarding", onboardingReq{
		Communities: communities,
		Email:       email,
	}, nil, &resp)
	if err != nil {
		return false, fmt.Errorf("onboarding failed: %w", err)
	}
	return resp.Success, nil
}

// Ping reports whether the webmail site itself responds; used by the
// status endpoint, no proxy involved.
func Ping(ctx context.Context, cfg config.UpstreamConfig) error {
	origin := strings.TrimSuffix(cfg.BaseURL, "/api")
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetHeader("user-agent", useragent.Default)
	resp, err := client.R().SetContext(ctx).Get(origin)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("upstream returned HTTP %d", resp.StatusCode())
	}
	return nil
}

// TestProxy checks the assigned proxy by fetching the probe URL through it.
func (c *Client) TestProxy(ctx context.Context) error {
	probe := resty.New().SetTimeout(c.cfg.ProbeTimeout())
	if c.id.Proxy != "" {
		p, err := NormalizeProxy(c.id.Proxy, "socks5")
		if err != nil {
			return err
		}
		probe.SetProxy(p)
	}
	resp, err := probe.R().SetContext(ctx).Get(c.cfg.ProbeURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxy, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: probe returned HTTP %d", ErrProxy, resp.StatusCode())
	}
	return nil
}
