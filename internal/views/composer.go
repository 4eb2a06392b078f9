// Package views assembles read models by joining accounts, content and
// relation edges at read time. Nothing here writes.
package views

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/paging"
	"github.com/Muhammad-Alii2/vibeverse/internal/relation"
)

const maxHistory = 200

type Composer struct {
	db  database.DBTX
	rel *relation.Engine
}

func NewComposer(db database.DBTX, rel *relation.Engine) *Composer {
	return &Composer{db: db, rel: rel}
}

// ChannelProfile returns the channel with the given handle as seen by
// viewerID, which may be empty.
func (c *Composer) ChannelProfile(ctx context.Context, viewerID, username string) (Channel, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return Channel{}, apperr.Invalid("username is required")
	}

	var ch Channel
	err := c.db.QueryRow(ctx,
		`SELECT id, username, email, full_name, COALESCE(avatar_url, ''), COALESCE(cover_image_url, ''), created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&ch.ID, &ch.Username, &ch.Email, &ch.FullName, &ch.Avatar, &ch.CoverImage, &ch.CreatedAt)
	if err != nil {
		return Channel{}, apperr.FromStore(err, "channel")
	}

	if ch.SubscribersCount, err = c.rel.CountActors(ctx, relation.KindChannel, ch.ID); err != nil {
		return Channel{}, err
	}
	if ch.SubscriptionsCount, err = c.rel.CountTargets(ctx, ch.ID, relation.KindChannel); err != nil {
		return Channel{}, err
	}
	if ch.IsSubscribed, err = c.rel.HasEdge(ctx, viewerID, relation.KindChannel, ch.ID); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

func (c *Composer) ChannelStats(ctx context.Context, channelID string) (Stats, error) {
	var s Stats
	err := c.db.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM videos WHERE owner_id = u.id),
		   (SELECT COALESCE(sum(views), 0)::BIGINT FROM videos WHERE owner_id = u.id),
		   (SELECT count(*) FROM relations r JOIN videos v ON v.id = r.target_id
		     WHERE r.target_kind = 'video' AND v.owner_id = u.id),
		   (SELECT count(*) FROM comments cm JOIN videos v ON v.id = cm.video_id
		     WHERE v.owner_id = u.id)
		 FROM users u WHERE u.id = $1`,
		channelID,
	).Scan(&s.TotalVideos, &s.TotalViews, &s.TotalLikes, &s.TotalComments)
	if err != nil {
		return Stats{}, apperr.FromStore(err, "channel")
	}

	if s.SubscribersCount, err = c.rel.CountActors(ctx, relation.KindChannel, channelID); err != nil {
		return Stats{}, err
	}
	if s.SubscriptionsCount, err = c.rel.CountTargets(ctx, channelID, relation.KindChannel); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Video returns one video with its owner and the viewer's relation flags.
// Unpublished videos are visible only to their owner.
func (c *Composer) Video(ctx context.Context, viewerID, videoID string) (VideoDetail, error) {
	v, err := scanVideo(c.db.QueryRow(ctx,
		`SELECT `+videoColumns+`
		 FROM videos v JOIN users u ON u.id = v.owner_id
		 WHERE v.id = $1 AND `+visibleTo("$2"),
		videoID, viewerID,
	))
	if err != nil {
		return VideoDetail{}, apperr.FromStore(err, "video")
	}

	d := VideoDetail{Video: v}
	if d.IsLiked, err = c.rel.HasEdge(ctx, viewerID, relation.KindVideo, v.ID); err != nil {
		return VideoDetail{}, err
	}
	if d.SubscribersCount, err = c.rel.CountActors(ctx, relation.KindChannel, v.Owner.ID); err != nil {
		return VideoDetail{}, err
	}
	if d.IsSubscribed, err = c.rel.HasEdge(ctx, viewerID, relation.KindChannel, v.Owner.ID); err != nil {
		return VideoDetail{}, err
	}
	return d, nil
}

// WatchHistory lists the viewer's watched videos, most recent first. An
// empty history is an empty list.
func (c *Composer) WatchHistory(ctx context.Context, viewerID string) ([]HistoryEntry, error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+videoColumns+`, h.watched_at
		 FROM watch_history h
		 JOIN videos v ON v.id = h.video_id
		 JOIN users u ON u.id = v.owner_id
		 WHERE h.user_id = $1 AND (v.is_published OR v.owner_id = $1)
		 ORDER BY h.watched_at DESC, v.id ASC
		 LIMIT $2`,
		viewerID, maxHistory,
	)
	if err != nil {
		return nil, apperr.FromStore(err, "history")
	}
	items, err := collect(rows, func(row pgx.Row) (HistoryEntry, error) {
		var e HistoryEntry
		var err error
		e.Video, err = scanVideo(row, &e.WatchedAt)
		return e, err
	})
	return items, apperr.FromStore(err, "history")
}

// LikedVideos follows the viewer's video-like edges to each video and its
// owner, most recent like first.
func (c *Composer) LikedVideos(ctx context.Context, viewerID string) ([]LikedVideo, error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+videoColumns+`, r.created_at
		 FROM relations r
		 JOIN videos v ON v.id = r.target_id
		 JOIN users u ON u.id = v.owner_id
		 WHERE r.actor_id = $1 AND r.target_kind = 'video' AND (v.is_published OR v.owner_id = $1)
		 ORDER BY r.created_at DESC, r.id ASC`,
		viewerID,
	)
	if err != nil {
		return nil, apperr.FromStore(err, "liked video")
	}
	items, err := collect(rows, func(row pgx.Row) (LikedVideo, error) {
		var l LikedVideo
		var err error
		l.Video, err = scanVideo(row, &l.LikedAt)
		return l, err
	})
	return items, apperr.FromStore(err, "liked video")
}

// SearchVideos matches p.Query against title and description. ownerID
// optionally restricts the listing to one channel.
func (c *Composer) SearchVideos(ctx context.Context, viewerID, ownerID string, p paging.Params) (paging.Page[Video], error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+videoColumns+`
		 FROM videos v JOIN users u ON u.id = v.owner_id
		 WHERE `+visibleTo("$1")+`
		   AND ($2 = '' OR v.title ILIKE $2 OR v.description ILIKE $2)
		   AND ($3 = '' OR v.owner_id = NULLIF($3, '')::uuid)
		 `+p.OrderBy()+` LIMIT $4 OFFSET $5`,
		viewerID, p.Pattern(), ownerID, p.Limit, p.Offset(),
	)
	if err != nil {
		return paging.Page[Video]{}, apperr.FromStore(err, "video")
	}
	return pageOf(rows, scanOnlyVideo, p, "videos")
}

// ChannelVideos lists every video of a channel, unpublished included, for
// its owner's dashboard.
func (c *Composer) ChannelVideos(ctx context.Context, channelID string, p paging.Params) (paging.Page[Video], error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+videoColumns+`
		 FROM videos v JOIN users u ON u.id = v.owner_id
		 WHERE v.owner_id = $1
		   AND ($2 = '' OR v.title ILIKE $2 OR v.description ILIKE $2)
		 `+p.OrderBy()+` LIMIT $3 OFFSET $4`,
		channelID, p.Pattern(), p.Limit, p.Offset(),
	)
	if err != nil {
		return paging.Page[Video]{}, apperr.FromStore(err, "video")
	}
	return pageOf(rows, scanOnlyVideo, p, "videos")
}

func (c *Composer) VideoComments(ctx context.Context, viewerID, videoID string, p paging.Params) (paging.Page[Comment], error) {
	rows, err := c.db.Query(ctx,
		`SELECT c.id, c.video_id, c.content,
		        (SELECT count(*) FROM relations r WHERE r.target_kind = 'comment' AND r.target_id = c.id),
		        EXISTS (SELECT 1 FROM relations r
		                WHERE r.target_kind = 'comment' AND r.target_id = c.id
		                  AND r.actor_id = NULLIF($2, '')::uuid),
		        c.created_at, c.updated_at, `+ownerColumns+`
		 FROM comments c
		 JOIN videos v ON v.id = c.video_id
		 JOIN users u ON u.id = c.owner_id
		 WHERE c.video_id = $1 AND `+visibleTo("$2")+`
		   AND ($3 = '' OR c.content ILIKE $3)
		 `+p.OrderBy()+` LIMIT $4 OFFSET $5`,
		videoID, viewerID, p.Pattern(), p.Limit, p.Offset(),
	)
	if err != nil {
		return paging.Page[Comment]{}, apperr.FromStore(err, "comment")
	}
	return pageOf(rows, func(row pgx.Row) (Comment, error) {
		var cm Comment
		err := row.Scan(&cm.ID, &cm.VideoID, &cm.Content, &cm.LikesCount, &cm.IsLiked,
			&cm.CreatedAt, &cm.UpdatedAt,
			&cm.Owner.ID, &cm.Owner.Username, &cm.Owner.FullName, &cm.Owner.Avatar)
		return cm, err
	}, p, "comments")
}

func (c *Composer) UserTweets(ctx context.Context, viewerID, ownerID string, p paging.Params) (paging.Page[Tweet], error) {
	rows, err := c.db.Query(ctx,
		`SELECT t.id, t.content,
		        (SELECT count(*) FROM relations r WHERE r.target_kind = 'tweet' AND r.target_id = t.id),
		        EXISTS (SELECT 1 FROM relations r
		                WHERE r.target_kind = 'tweet' AND r.target_id = t.id
		                  AND r.actor_id = NULLIF($2, '')::uuid),
		        t.created_at, t.updated_at, `+ownerColumns+`
		 FROM tweets t JOIN users u ON u.id = t.owner_id
		 WHERE t.owner_id = $1 AND ($3 = '' OR t.content ILIKE $3)
		 `+p.OrderBy()+` LIMIT $4 OFFSET $5`,
		ownerID, viewerID, p.Pattern(), p.Limit, p.Offset(),
	)
	if err != nil {
		return paging.Page[Tweet]{}, apperr.FromStore(err, "tweet")
	}
	return pageOf(rows, func(row pgx.Row) (Tweet, error) {
		var t Tweet
		err := row.Scan(&t.ID, &t.Content, &t.LikesCount, &t.IsLiked, &t.CreatedAt, &t.UpdatedAt,
			&t.Owner.ID, &t.Owner.Username, &t.Owner.FullName, &t.Owner.Avatar)
		return t, err
	}, p, "tweets")
}

const playlistColumns = `p.id, p.name, p.description,
	(SELECT count(*) FROM playlist_videos pv WHERE pv.playlist_id = p.id),
	p.created_at, p.updated_at, ` + ownerColumns

func scanPlaylist(row pgx.Row) (Playlist, error) {
	var pl Playlist
	err := row.Scan(&pl.ID, &pl.Name, &pl.Description, &pl.VideoCount, &pl.CreatedAt, &pl.UpdatedAt,
		&pl.Owner.ID, &pl.Owner.Username, &pl.Owner.FullName, &pl.Owner.Avatar)
	return pl, err
}

func (c *Composer) UserPlaylists(ctx context.Context, ownerID string, p paging.Params) (paging.Page[Playlist], error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+playlistColumns+`
		 FROM playlists p JOIN users u ON u.id = p.owner_id
		 WHERE p.owner_id = $1 AND ($2 = '' OR p.name ILIKE $2 OR p.description ILIKE $2)
		 `+p.OrderBy()+` LIMIT $3 OFFSET $4`,
		ownerID, p.Pattern(), p.Limit, p.Offset(),
	)
	if err != nil {
		return paging.Page[Playlist]{}, apperr.FromStore(err, "playlist")
	}
	return pageOf(rows, scanPlaylist, p, "playlists")
}

// Playlist returns a playlist with its videos in insertion order. Videos the
// viewer cannot see are left out.
func (c *Composer) Playlist(ctx context.Context, viewerID, playlistID string) (PlaylistDetail, error) {
	pl, err := scanPlaylist(c.db.QueryRow(ctx,
		`SELECT `+playlistColumns+`
		 FROM playlists p JOIN users u ON u.id = p.owner_id
		 WHERE p.id = $1`,
		playlistID,
	))
	if err != nil {
		return PlaylistDetail{}, apperr.FromStore(err, "playlist")
	}

	rows, err := c.db.Query(ctx,
		`SELECT `+videoColumns+`
		 FROM playlist_videos pv
		 JOIN videos v ON v.id = pv.video_id
		 JOIN users u ON u.id = v.owner_id
		 WHERE pv.playlist_id = $1 AND `+visibleTo("$2")+`
		 ORDER BY pv.position ASC`,
		playlistID, viewerID,
	)
	if err != nil {
		return PlaylistDetail{}, apperr.FromStore(err, "playlist")
	}
	videos, err := collect(rows, scanOnlyVideo)
	if err != nil {
		return PlaylistDetail{}, apperr.FromStore(err, "playlist")
	}
	return PlaylistDetail{Playlist: pl, Videos: videos}, nil
}

// ChannelSubscribers lists the accounts subscribed to channelID in
// subscription order.
func (c *Composer) ChannelSubscribers(ctx context.Context, viewerID, channelID string, p paging.Params) (paging.Page[ChannelCard], error) {
	edges, err := c.rel.ListActors(ctx, relation.KindChannel, channelID, p)
	if err != nil {
		return paging.Page[ChannelCard]{}, err
	}
	ids := make([]string, len(edges))
	since := make(map[string]time.Time, len(edges))
	for i, e := range edges {
		ids[i] = e.ActorID
		since[e.ActorID] = e.CreatedAt
	}
	cards, err := c.channelCards(ctx, viewerID, ids, since)
	if err != nil {
		return paging.Page[ChannelCard]{}, err
	}
	return paging.NewPage(cards, p, "subscribers")
}

// SubscribedChannels lists the channels subscriberID follows in
// subscription order.
func (c *Composer) SubscribedChannels(ctx context.Context, viewerID, subscriberID string, p paging.Params) (paging.Page[ChannelCard], error) {
	edges, err := c.rel.ListTargets(ctx, subscriberID, relation.KindChannel, p)
	if err != nil {
		return paging.Page[ChannelCard]{}, err
	}
	ids := make([]string, len(edges))
	since := make(map[string]time.Time, len(edges))
	for i, e := range edges {
		ids[i] = e.TargetID
		since[e.TargetID] = e.CreatedAt
	}
	cards, err := c.channelCards(ctx, viewerID, ids, since)
	if err != nil {
		return paging.Page[ChannelCard]{}, err
	}
	return paging.NewPage(cards, p, "subscribed channels")
}

// channelCards hydrates ids into cards, keeping the order of ids. Accounts
// deleted since the edge was read are skipped.
func (c *Composer) channelCards(ctx context.Context, viewerID string, ids []string, since map[string]time.Time) ([]ChannelCard, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.db.Query(ctx,
		`SELECT `+ownerColumns+`,
		        (SELECT count(*) FROM relations r WHERE r.target_kind = 'channel' AND r.target_id = u.id),
		        EXISTS (SELECT 1 FROM relations r
		                WHERE r.target_kind = 'channel' AND r.target_id = u.id
		                  AND r.actor_id = NULLIF($2, '')::uuid)
		 FROM users u WHERE u.id = ANY($1)`,
		ids, viewerID,
	)
	if err != nil {
		return nil, apperr.FromStore(err, "channel")
	}
	found, err := collect(rows, func(row pgx.Row) (ChannelCard, error) {
		var cc ChannelCard
		err := row.Scan(&cc.ID, &cc.Username, &cc.FullName, &cc.Avatar, &cc.SubscribersCount, &cc.IsSubscribed)
		return cc, err
	})
	if err != nil {
		return nil, apperr.FromStore(err, "channel")
	}

	byID := make(map[string]ChannelCard, len(found))
	for _, cc := range found {
		byID[cc.ID] = cc
	}
	cards := make([]ChannelCard, 0, len(ids))
	for _, id := range ids {
		cc, ok := byID[id]
		if !ok {
			continue
		}
		cc.Since = since[id]
		cards = append(cards, cc)
	}
	return cards, nil
}

func scanOnlyVideo(row pgx.Row) (Video, error) {
	return scanVideo(row)
}

func pageOf[T any](rows pgx.Rows, scan func(pgx.Row) (T, error), p paging.Params, resource string) (paging.Page[T], error) {
	items, err := collect(rows, scan)
	if err != nil {
		return paging.Page[T]{}, apperr.FromStore(err, resource)
	}
	return paging.NewPage(items, p, resource)
}
