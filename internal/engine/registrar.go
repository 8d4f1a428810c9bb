package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/model"
	"ethermail_farm/internal/store/sqlite"
	"ethermail_farm/internal/upstream"
	"ethermail_farm/internal/useragent"
	"ethermail_farm/internal/wallet"
)

const onboardCommunities = 3

// accountRegistrar is the production workflow for one account: wallet
// generation, nonce fetch, signed login, community onboarding, persist.
// Steps are strictly ordered; the first error aborts the rest of the item.
type accountRegistrar struct {
	cfg     config.UpstreamConfig
	store   *sqlite.Store
	bus     *logbus.Bus
	limiter *rate.Limiter
}

func (r *accountRegistrar) Register(ctx context.Context, proxy string) (model.CreatedAccount, error) {
	ua := useragent.Random()
	client, err := upstream.New(r.cfg, upstream.Identity{Proxy: proxy, UserAgent: ua}, r.limiter, r.bus)
	if err != nil {
		return model.CreatedAccount{}, err
	}

	w, err := wallet.Generate()
	if err != nil {
		return model.CreatedAccount{}, fmt.Errorf("generate wallet: %w", err)
	}

	token, err := client.Authenticate(ctx, w.Address, w.PrivateKey)
	if err != nil {
		return model.CreatedAccount{}, err
	}
	client.SetToken(token)

	email := strings.ToLower(w.Address) + "@" + r.cfg.MailDomain

	if err := r.onboard(ctx, client, w.Address, email); err != nil {
		return model.CreatedAccount{}, fmt.Errorf("onboarding: %w", err)
	}

	now := time.Now()
	acc, err := r.store.InsertAccount(ctx, model.Account{
		WalletAddress: w.Address,
		PrivateKey:    w.PrivateKey,
		Mnemonic:      w.Mnemonic,
		Email:         email,
		Token:         token,
		Proxy:         proxy,
		UserAgent:     ua,
		CreatedAt:     now,
		LastUsed:      now,
	})
	if err != nil {
		return model.CreatedAccount{}, err
	}

	return model.CreatedAccount{
		ID:            acc.ID,
		WalletAddress: w.Address,
		Token:         token,
	}, nil
}

// onboard fails the item on any request error; only an explicit
// success:false reply is tolerated, the account exists once login
// succeeded.
func (r *accountRegistrar) onboard(ctx context.Context, client *upstream.Client, address, email string) error {
	ids, err := client.Communities(ctx, "show", 12)
	if err != nil {
		return err
	}
	ok, err := client.Onboard(ctx, sampleCommunities(ids, onboardCommunities), email)
	if err != nil {
		return err
	}
	if !ok && r.bus != nil {
		r.bus.Log("warn", "onboarding rejected", map[string]any{"walletAddress": address})
	}
	return nil
}

// sampleCommunities picks up to n distinct ids at random.
func sampleCommunities(ids []string, n int) []string {
	if len(ids) <= n {
		return ids
	}
	picked := append([]string(nil), ids...)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}
