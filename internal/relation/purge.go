package relation

import (
	"context"

	"github.com/Muhammad-Alii2/vibeverse/internal/database"
)

// The Purge methods run inside the deleting component's transaction, so
// they take the transaction explicitly. Edges on the actor side go with the
// account row through the foreign key.

// PurgeVideo removes likes on the video and on its comments.
func (e *Engine) PurgeVideo(ctx context.Context, db database.DBTX, videoID string) error {
	_, err := db.Exec(ctx,
		`DELETE FROM relations
		 WHERE (target_kind = 'video' AND target_id = $1)
		    OR (target_kind = 'comment' AND target_id IN (SELECT id FROM comments WHERE video_id = $1))`,
		videoID,
	)
	return err
}

func (e *Engine) PurgeComment(ctx context.Context, db database.DBTX, commentID string) error {
	_, err := db.Exec(ctx,
		`DELETE FROM relations WHERE target_kind = 'comment' AND target_id = $1`,
		commentID,
	)
	return err
}

func (e *Engine) PurgeTweet(ctx context.Context, db database.DBTX, tweetID string) error {
	_, err := db.Exec(ctx,
		`DELETE FROM relations WHERE target_kind = 'tweet' AND target_id = $1`,
		tweetID,
	)
	return err
}

// PurgeAccount removes subscriptions to the account and likes on anything
// the account owns or that hangs off its videos.
func (e *Engine) PurgeAccount(ctx context.Context, db database.DBTX, accountID string) error {
	_, err := db.Exec(ctx,
		`DELETE FROM relations
		 WHERE (target_kind = 'channel' AND target_id = $1)
		    OR (target_kind = 'video' AND target_id IN (SELECT id FROM videos WHERE owner_id = $1))
		    OR (target_kind = 'tweet' AND target_id IN (SELECT id FROM tweets WHERE owner_id = $1))
		    OR (target_kind = 'comment' AND target_id IN (
		        SELECT id FROM comments
		        WHERE owner_id = $1 OR video_id IN (SELECT id FROM videos WHERE owner_id = $1)))`,
		accountID,
	)
	return err
}
