package model

import "time"

type Account struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	PrivateKey    string    `json:"-"`
	Mnemonic      string    `json:"-"`
	Email         string    `json:"email,omitempty"`
	Token         string    `json:"-"`
	Proxy         string    `json:"proxy,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUsed      time.Time `json:"lastUsed"`
}

// CreatedAccount is the per-item result recorded on a task when one
// registration finishes.
type CreatedAccount struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Token         string `json:"token"`
}
