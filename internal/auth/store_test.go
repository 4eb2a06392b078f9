package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
)

const testUserID = "550e8400-e29b-41d4-a716-446655440000"

var accountCols = []string{"id", "username", "email", "full_name", "avatar_url", "cover_image_url",
	"avatar_handle", "cover_image_handle", "created_at", "updated_at"}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return newStoreWithCost(mock, newTestSigner(), bcrypt.MinCost), mock
}

func accountRows(extra ...string) *pgxmock.Rows {
	return pgxmock.NewRows(append(append([]string{}, accountCols...), extra...))
}

func addAccount(rows *pgxmock.Rows, extra ...any) *pgxmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	values := []any{testUserID, "alice", "alice@example.com", "Alice Liddell", "", "", "", "", now, now}
	return rows.AddRow(append(values, extra...)...)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

// capture records the argument it is matched against.
type capture struct{ dst *string }

func (c capture) Match(v interface{}) bool {
	s, ok := v.(string)
	if ok {
		*c.dst = s
	}
	return ok
}

// sameAs matches the current value of *want at call time.
type sameAs struct{ want *string }

func (m sameAs) Match(v interface{}) bool {
	s, ok := v.(string)
	return ok && s == *m.want
}

func TestAuthenticate_ByUsernameOrEmail(t *testing.T) {
	store, mock := newTestStore(t)
	hash := mustHash(t, "strongpass123")

	for _, identifier := range []string{"  Alice ", "ALICE@example.com"} {
		want := "alice"
		if identifier == "ALICE@example.com" {
			want = "alice@example.com"
		}
		mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1 OR email = \$1`).
			WithArgs(want).
			WillReturnRows(addAccount(accountRows("password_hash"), hash))

		account, err := store.Authenticate(context.Background(), identifier, "strongpass123")
		if err != nil {
			t.Fatalf("Authenticate(%q): %v", identifier, err)
		}
		if account.ID != testUserID || account.Username != "alice" {
			t.Errorf("unexpected account %+v", account)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1 OR email = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, unknownErr := store.Authenticate(context.Background(), "ghost", "whatever1")

	mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1 OR email = \$1`).
		WithArgs("alice").
		WillReturnRows(addAccount(accountRows("password_hash"), mustHash(t, "strongpass123")))
	_, wrongErr := store.Authenticate(context.Background(), "alice", "wrongpass1")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if apperr.MessageOf(unknownErr) != apperr.MessageOf(wrongErr) {
		t.Error("expected identical messages for unknown account and wrong password")
	}
}

func TestAuthenticate_StoreFailureIsUnavailable(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("alice").
		WillReturnError(&pgconn.PgError{Code: "57P01"})

	_, err := store.Authenticate(context.Background(), "alice", "strongpass123")
	if apperr.KindOf(err) != apperr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestIssueSession_StoresHashOfRefreshToken(t *testing.T) {
	store, mock := newTestStore(t)
	var stored string

	mock.ExpectExec(`UPDATE users SET refresh_token_hash = \$2 WHERE id = \$1`).
		WithArgs(testUserID, capture{&stored}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	session, err := store.IssueSession(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if stored != hashToken(session.RefreshToken) {
		t.Error("expected the stored value to be the hash of the refresh token")
	}
	if stored == session.RefreshToken {
		t.Error("refresh token must not be stored in clear")
	}

	claims, err := store.signer.ParseAccess(session.AccessToken)
	if err != nil || claims.Subject != testUserID {
		t.Fatalf("expected access token for %s, got %v, %v", testUserID, claims, err)
	}
}

func TestIssueSession_UnknownAccount(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE users SET refresh_token_hash`).
		WithArgs("missing", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if _, err := store.IssueSession(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRefresh_CompareAndSwapOnPresentedHash(t *testing.T) {
	store, mock := newTestStore(t)
	var stored string

	mock.ExpectExec(`UPDATE users SET refresh_token_hash = \$2 WHERE id = \$1`).
		WithArgs(testUserID, capture{&stored}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	first, err := store.IssueSession(context.Background(), testUserID)
	if err != nil {
		t.Fatal(err)
	}

	previous := stored
	mock.ExpectExec(`UPDATE users SET refresh_token_hash = \$3 WHERE id = \$1 AND refresh_token_hash = \$2`).
		WithArgs(testUserID, sameAs{&previous}, capture{&stored}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	second, err := store.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("expected a rotated refresh token")
	}
	if stored != hashToken(second.RefreshToken) {
		t.Error("expected the new hash to be swapped in")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestRefresh_LostSwapClassification(t *testing.T) {
	tests := []struct {
		name   string
		lookup func(*pgxmock.ExpectedQuery)
		want   error
	}{
		{"rotated out", func(q *pgxmock.ExpectedQuery) {
			q.WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(true))
		}, ErrTokenMismatch},
		{"revoked", func(q *pgxmock.ExpectedQuery) {
			q.WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(false))
		}, ErrSessionRevoked},
		{"account deleted", func(q *pgxmock.ExpectedQuery) {
			q.WillReturnError(pgx.ErrNoRows)
		}, ErrAccountNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newTestStore(t)
			token, _ := store.signer.RefreshToken(testUserID)

			mock.ExpectExec(`UPDATE users SET refresh_token_hash = \$3`).
				WithArgs(testUserID, hashToken(token), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			tc.lookup(mock.ExpectQuery(`SELECT refresh_token_hash IS NOT NULL FROM users WHERE id = \$1`).
				WithArgs(testUserID))

			_, err := store.Refresh(context.Background(), token)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if apperr.KindOf(err) != apperr.Unauthorized {
				t.Errorf("expected Unauthorized, got %s", apperr.KindOf(err))
			}
		})
	}
}

func TestRefresh_RejectsBadTokensWithoutTouchingStore(t *testing.T) {
	store, mock := newTestStore(t)
	access, _ := store.signer.AccessToken(testUserID)

	for _, token := range []string{"garbage", access} {
		_, err := store.Refresh(context.Background(), token)
		if apperr.KindOf(err) != apperr.Unauthorized {
			t.Errorf("expected Unauthorized for %q, got %v", token, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store should not be touched: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE users SET refresh_token_hash = NULL WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET refresh_token_hash = NULL`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.Revoke(context.Background(), testUserID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestChangeCredential(t *testing.T) {
	store, mock := newTestStore(t)
	oldHash := mustHash(t, "oldpassword")

	mock.ExpectQuery(`SELECT password_hash FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow(oldHash))
	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs(testUserID, pgxmock.AnyArg(), oldHash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.ChangeCredential(context.Background(), testUserID, "oldpassword", "newpassword"); err != nil {
		t.Fatalf("ChangeCredential: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations (refresh slot must not be touched): %v", err)
	}
}

func TestChangeCredential_WrongOldPassword(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT password_hash FROM users`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow(mustHash(t, "oldpassword")))

	err := store.ChangeCredential(context.Background(), testUserID, "not-it-at-all", "newpassword")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestCreateAccount_DuplicateIsConflict(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", "Alice", pgxmock.AnyArg(), "", "", "", "").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := store.CreateAccount(context.Background(), NewAccount{
		Username: "alice", Email: "alice@example.com", FullName: "Alice", Password: "strongpass123",
	})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if apperr.MessageOf(err) != "username or email already taken" {
		t.Errorf("unexpected message %q", apperr.MessageOf(err))
	}
}

func TestReplaceMedia_ReturnsSupersededHandle(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(avatar_handle, ''\) FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"handle"}).AddRow("old.png"))
	mock.ExpectQuery(`UPDATE users SET avatar_url = \$2, avatar_handle = \$3`).
		WithArgs(testUserID, "https://cdn/new.png", "new.png").
		WillReturnRows(addAccount(accountRows()))
	mock.ExpectCommit()

	_, previous, err := store.ReplaceMedia(context.Background(), testUserID, MediaAvatar, "https://cdn/new.png", "new.png")
	if err != nil {
		t.Fatalf("ReplaceMedia: %v", err)
	}
	if previous != "old.png" {
		t.Errorf("expected old.png, got %q", previous)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestReplaceMedia_UnknownAccountRollsBack(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(cover_image_handle, ''\) FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := store.ReplaceMedia(context.Background(), testUserID, MediaCoverImage, "https://cdn/c.png", "c.png")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

type recordingPurger struct {
	called string
	err    error
}

func (p *recordingPurger) PurgeAccount(_ context.Context, _ database.DBTX, accountID string) error {
	p.called = accountID
	return p.err
}

func TestDeleteAccount_PurgesEdgesInOneTransaction(t *testing.T) {
	store, mock := newTestStore(t)
	purger := &recordingPurger{}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT video_handle, thumbnail_handle FROM videos WHERE owner_id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"video_handle", "thumbnail_handle"}).
			AddRow("v1.mp4", "t1.png"))
	mock.ExpectQuery(`DELETE FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"avatar_handle", "cover_image_handle"}).AddRow("a.png", ""))
	mock.ExpectCommit()

	handles, err := store.DeleteAccount(context.Background(), testUserID, purger)
	if err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if purger.called != testUserID {
		t.Errorf("expected edges purged for %s, got %q", testUserID, purger.called)
	}
	want := []string{"v1.mp4", "t1.png", "a.png", ""}
	if len(handles) != len(want) {
		t.Fatalf("expected handles %v, got %v", want, handles)
	}
	for i := range want {
		if handles[i] != want[i] {
			t.Errorf("handle %d: expected %q, got %q", i, want[i], handles[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestDeleteAccount_PurgeFailureRollsBack(t *testing.T) {
	store, mock := newTestStore(t)
	purger := &recordingPurger{err: &pgconn.PgError{Code: "40001"}}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT video_handle, thumbnail_handle FROM videos`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"video_handle", "thumbnail_handle"}))
	mock.ExpectRollback()

	_, err := store.DeleteAccount(context.Background(), testUserID, purger)
	if apperr.KindOf(err) != apperr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestDeleteAccount_Missing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT video_handle, thumbnail_handle FROM videos`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"video_handle", "thumbnail_handle"}))
	mock.ExpectQuery(`DELETE FROM users`).
		WithArgs(testUserID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.DeleteAccount(context.Background(), testUserID, nil)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
