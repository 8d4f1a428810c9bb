package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ethermail_farm/internal/model"
)

var ErrNotFound = errors.New("account not found")

const accountColumns = "id, wallet_address, private_key, mnemonic, email, token, proxy, user_agent, created_at, last_used"

func (s *Store) InsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.WalletAddress == "" {
		return model.Account{}, errors.New("wallet address is required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	if acc.LastUsed.IsZero() {
		acc.LastUsed = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, acc.ID, acc.WalletAddress, acc.PrivateKey, acc.Mnemonic, acc.Email, acc.Token, acc.Proxy, acc.UserAgent, acc.CreatedAt.UnixMilli(), acc.LastUsed.UnixMilli())
	if err != nil {
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
}

func (s *Store) queryOne(ctx context.Context, query string, arg any) (model.Account, error) {
	var row struct {
		id        string
		address   string
		key       string
		mnemonic  string
		email     string
		token     string
		proxy     string
		userAgent string
		createdAt int64
		lastUsed  int64
	}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&row.id, &row.address, &row.key, &row.mnemonic, &row.email, &row.token,
		&row.proxy, &row.userAgent, &row.createdAt, &row.lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{
		ID:            row.id,
		WalletAddress: row.address,
		PrivateKey:    row.key,
		Mnemonic:      row.mnemonic,
		Email:         row.email,
		Token:         row.token,
		Proxy:         row.proxy,
		UserAgent:     row.userAgent,
		CreatedAt:     time.UnixMilli(row.createdAt),
		LastUsed:      time.UnixMilli(row.lastUsed),
	}, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var row struct {
			id        string
			address   string
			key       string
			mnemonic  string
			email     string
			token     string
			proxy     string
			userAgent string
			createdAt int64
			lastUsed  int64
		}
		if err := rows.Scan(&row.id, &row.address, &row.key, &row.mnemonic, &row.email, &row.token,
			&row.proxy, &row.userAgent, &row.createdAt, &row.lastUsed); err != nil {
			return nil, err
		}
		out = append(out, model.Account{
			ID:            row.id,
			WalletAddress: row.address,
			PrivateKey:    row.key,
			Mnemonic:      row.mnemonic,
			Email:         row.email,
			Token:         row.token,
			Proxy:         row.proxy,
			UserAgent:     row.userAgent,
			CreatedAt:     time.UnixMilli(row.createdAt),
			LastUsed:      time.UnixMilli(row.lastUsed),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateAccountToken(ctx context.Context, id, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET token = ?, last_used = ? WHERE id = ?`,
		token, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateAccountProxy(ctx context.Context, id, proxy string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET proxy = ? WHERE id = ?`, proxy, id)
	if err != nil {
		return fmt.Errorf("update proxy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_used = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	return err
}

type AccountStats struct {
	Total      int `json:"totalAccounts"`
	Active24h  int `json:"activeAccounts"`
	Created24h int `json:"accountsCreated24h"`
}

func (s *Store) Stats(ctx context.Context) (AccountStats, error) {
	var st AccountStats
	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&st.Total); err != nil {
		return AccountStats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE last_used >= ?`, cutoff).Scan(&st.Active24h); err != nil {
		return AccountStats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE created_at >= ?`, cutoff).Scan(&st.Created24h); err != nil {
		return AccountStats{}, err
	}
	return st, nil
}
