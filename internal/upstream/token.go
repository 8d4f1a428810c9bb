package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ethermail_farm/internal/model"
	"ethermail_farm/internal/wallet"
)

// Tokens with less than this much validity left are refreshed before use.
const refreshWindow = time.Hour

// TokenStore persists a refreshed token back to the account record.
type TokenStore interface {
	UpdateAccountToken(ctx context.Context, id, token string) error
}

// Authenticate runs the nonce → sign → login sequence for a wallet and
// returns the resulting auth token.
func (c *Client) Authenticate(ctx context.Context, address, privateKey string) (string, error) {
	addr := strings.ToLower(address)
	nonce, err := c.GetNonce(ctx, addr)
	if err != nil {
		return "", err
	}
	sig, err := wallet.PersonalSign(privateKey, ConsentMessage(nonce))
	if err != nil {
		return "", err
	}
	return c.Login(ctx, addr, sig)
}

// EnsureFreshToken installs the account's token for subsequent calls,
// transparently re-authenticating and persisting the replacement when the
// current one is close to expiry.
func (c *Client) EnsureFreshToken(ctx context.Context, acc model.Account, store TokenStore) (string, error) {
	remaining, err := tokenRemaining(acc.Token, time.Now())
	if err != nil {
		return "", err
	}
	if remaining >= refreshWindow {
		c.SetToken(acc.Token)
		return acc.Token, nil
	}

	if c.bus != nil {
		c.bus.Log("info", "token expires soon, refreshing", map[string]any{"accountId": acc.ID})
	}
	token, err := c.Authenticate(ctx, acc.WalletAddress, acc.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	if store != nil {
		if err := store.UpdateAccountToken(ctx, acc.ID, token); err != nil {
			return "", fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	c.SetToken(token)
	return token, nil
}

// tokenRemaining reads the unverified exp claim; signature validity is the
// upstream's concern, we only need the embedded timestamp.
func tokenRemaining(token string, now time.Time) (time.Duration, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, errors.New("invalid token format: no expiration time")
	}
	return exp.Time.Sub(now), nil
}
