package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
)

var (
	ErrInvalidCredentials = apperr.Unauthenticated("invalid credentials")
	ErrAccountNotFound    = apperr.Unauthenticated("account not found")
	ErrTokenMismatch      = apperr.Unauthenticated("refresh token is expired or used")
	ErrSessionRevoked     = apperr.Unauthenticated("session has been revoked")
	ErrInvalidToken       = apperr.Unauthenticated("invalid token")
)

type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar,omitempty"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	avatarHandle     string
	coverImageHandle string
}

type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

const accountColumns = `id, username, email, full_name, COALESCE(avatar_url, ''), COALESCE(cover_image_url, ''),
	COALESCE(avatar_handle, ''), COALESCE(cover_image_handle, ''), created_at, updated_at`

func scanAccount(row pgx.Row, extra ...any) (Account, error) {
	var a Account
	dest := []any{&a.ID, &a.Username, &a.Email, &a.FullName, &a.AvatarURL, &a.CoverImageURL,
		&a.avatarHandle, &a.coverImageHandle, &a.CreatedAt, &a.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return a, err
}

// Store owns the password hash and the refresh slot of every account.
type Store struct {
	db        database.DBTX
	signer    *Signer
	cost      int
	dummyHash []byte
}

func NewStore(db database.DBTX, signer *Signer) *Store {
	return newStoreWithCost(db, signer, bcrypt.DefaultCost)
}

func newStoreWithCost(db database.DBTX, signer *Signer, cost int) *Store {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("vibeverse-timing-equalizer"), cost)
	return &Store{db: db, signer: signer, cost: cost, dummyHash: dummy}
}

func (s *Store) Signer() *Signer { return s.signer }

// HashPassword hashes a new credential with the store's cost.
func (s *Store) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to hash password", err)
	}
	return string(hashed), nil
}

// Authenticate resolves identifier as a handle or an email. Unknown accounts
// still pay for a bcrypt comparison.
func (s *Store) Authenticate(ctx context.Context, identifier, password string) (Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var hash string
	account, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+`, password_hash FROM users WHERE username = $1 OR email = $1 LIMIT 1`,
		identifier,
	), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, apperr.FromStore(err, "account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// IssueSession mints a token pair and overwrites the stored refresh slot,
// which invalidates any session issued earlier.
func (s *Store) IssueSession(ctx context.Context, accountID string) (Session, error) {
	session, refreshHash, err := s.mint(accountID)
	if err != nil {
		return Session{}, err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $2 WHERE id = $1`,
		accountID, refreshHash,
	)
	if err != nil {
		return Session{}, apperr.FromStore(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return Session{}, ErrAccountNotFound
	}
	return session, nil
}

// Refresh rotates presented into a fresh pair. The swap is conditional on
// the stored hash still matching presented, so of two racing refreshes
// with the same token at most one wins.
func (s *Store) Refresh(ctx context.Context, presented string) (Session, error) {
	claims, err := s.signer.ParseRefresh(presented)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Unauthorized, ErrInvalidToken.Message, err)
	}
	accountID := claims.Subject

	session, refreshHash, err := s.mint(accountID)
	if err != nil {
		return Session{}, err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $3 WHERE id = $1 AND refresh_token_hash = $2`,
		accountID, hashToken(presented), refreshHash,
	)
	if err != nil {
		return Session{}, apperr.FromStore(err, "account")
	}
	if tag.RowsAffected() == 1 {
		return session, nil
	}

	var active bool
	err = s.db.QueryRow(ctx,
		`SELECT refresh_token_hash IS NOT NULL FROM users WHERE id = $1`, accountID,
	).Scan(&active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Session{}, ErrAccountNotFound
	case err != nil:
		return Session{}, apperr.FromStore(err, "account")
	case !active:
		return Session{}, ErrSessionRevoked
	default:
		return Session{}, ErrTokenMismatch
	}
}

// Revoke clears the refresh slot. Refreshing fails until the next
// IssueSession.
func (s *Store) Revoke(ctx context.Context, accountID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET refresh_token_hash = NULL WHERE id = $1`, accountID,
	)
	if err != nil {
		return apperr.FromStore(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ChangeCredential replaces the password hash. The current session stays
// valid.
func (s *Store) ChangeCredential(ctx context.Context, accountID, oldPassword, newPassword string) error {
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE id = $1`, accountID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return apperr.FromStore(err, "account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1 AND password_hash = $3`,
		accountID, newHash, hash,
	)
	if err != nil {
		return apperr.FromStore(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.Conflict, "password was changed concurrently")
	}
	return nil
}

func (s *Store) mint(accountID string) (Session, string, error) {
	access, err := s.signer.AccessToken(accountID)
	if err != nil {
		return Session{}, "", apperr.Wrap(apperr.Internal, "failed to sign token", err)
	}
	refresh, err := s.signer.RefreshToken(accountID)
	if err != nil {
		return Session{}, "", apperr.Wrap(apperr.Internal, "failed to sign token", err)
	}
	return Session{AccessToken: access, RefreshToken: refresh}, hashToken(refresh), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
