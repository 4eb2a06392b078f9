package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
)

var ErrAccountTaken = apperr.New(apperr.Conflict, "username or email already taken")

type NewAccount struct {
	Username         string
	Email            string
	FullName         string
	Password         string
	AvatarURL        string
	AvatarHandle     string
	CoverImageURL    string
	CoverImageHandle string
}

type ProfileUpdate struct {
	Username string
	Email    string
	FullName string
}

// Media names a replaceable profile image.
type Media string

const (
	MediaAvatar     Media = "avatar"
	MediaCoverImage Media = "cover_image"
)

// EdgePurger removes relation edges that would dangle once an account and
// its content are gone.
type EdgePurger interface {
	PurgeAccount(ctx context.Context, db database.DBTX, accountID string) error
}

func (s *Store) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return Account{}, err
	}

	account, err := scanAccount(s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, full_name, password_hash, avatar_url, avatar_handle, cover_image_url, cover_image_handle)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		 RETURNING `+accountColumns,
		in.Username, in.Email, in.FullName, hash,
		in.AvatarURL, in.AvatarHandle, in.CoverImageURL, in.CoverImageHandle,
	))
	if err != nil {
		return Account{}, classifyAccountWrite(err)
	}
	return account, nil
}

func (s *Store) AccountByID(ctx context.Context, accountID string) (Account, error) {
	account, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE id = $1`, accountID,
	))
	if err != nil {
		return Account{}, apperr.FromStore(err, "account")
	}
	return account, nil
}

// UpdateProfile changes the non-empty fields of in.
func (s *Store) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (Account, error) {
	account, err := scanAccount(s.db.QueryRow(ctx,
		`UPDATE users SET
			username = COALESCE(NULLIF($2, ''), username),
			email = COALESCE(NULLIF($3, ''), email),
			full_name = COALESCE(NULLIF($4, ''), full_name),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+accountColumns,
		accountID, in.Username, in.Email, in.FullName,
	))
	if err != nil {
		return Account{}, classifyAccountWrite(err)
	}
	return account, nil
}

// ReplaceMedia points the account at a new image and returns the handle of
// the one it superseded ("" if none). The row is locked while the old handle
// is read, so concurrent replacements each see their true predecessor.
func (s *Store) ReplaceMedia(ctx context.Context, accountID string, media Media, url, handle string) (Account, string, error) {
	var column string
	switch media {
	case MediaAvatar:
		column = "avatar"
	case MediaCoverImage:
		column = "cover_image"
	default:
		return Account{}, "", apperr.Invalid("unknown media")
	}

	var account Account
	var previous string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(`+column+`_handle, '') FROM users WHERE id = $1 FOR UPDATE`,
			accountID,
		).Scan(&previous); err != nil {
			return err
		}

		var err error
		account, err = scanAccount(tx.QueryRow(ctx,
			`UPDATE users SET `+column+`_url = $2, `+column+`_handle = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING `+accountColumns,
			accountID, url, handle,
		))
		return err
	})
	if err != nil {
		return Account{}, "", apperr.FromStore(err, "account")
	}
	return account, previous, nil
}

// DeleteAccount removes the account, its content and every edge pointing at
// either, in one transaction. It returns the blob handles left to remove.
func (s *Store) DeleteAccount(ctx context.Context, accountID string, purger EdgePurger) ([]string, error) {
	var handles []string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT video_handle, thumbnail_handle FROM videos WHERE owner_id = $1`, accountID,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var video, thumb string
			if err := rows.Scan(&video, &thumb); err != nil {
				rows.Close()
				return err
			}
			handles = append(handles, video, thumb)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if purger != nil {
			if err := purger.PurgeAccount(ctx, tx, accountID); err != nil {
				return err
			}
		}

		var avatar, cover string
		err = tx.QueryRow(ctx,
			`DELETE FROM users WHERE id = $1
			 RETURNING COALESCE(avatar_handle, ''), COALESCE(cover_image_handle, '')`,
			accountID,
		).Scan(&avatar, &cover)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		handles = append(handles, avatar, cover)
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, "account")
	}
	return handles, nil
}

func classifyAccountWrite(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Wrap(apperr.Conflict, ErrAccountTaken.Message, err)
	}
	return apperr.FromStore(err, "account")
}
