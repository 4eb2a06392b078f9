package views

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/paging"
)

// Owner is the public face of an account embedded in other views.
type Owner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	VideoURL    string    `json:"videoFile"`
	Thumbnail   string    `json:"thumbnail"`
	Duration    int       `json:"duration"`
	Views       int64     `json:"views"`
	IsPublished bool      `json:"isPublished"`
	LikesCount  int64     `json:"likesCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Owner       Owner     `json:"owner"`
}

type VideoDetail struct {
	Video
	IsLiked          bool  `json:"isLiked"`
	SubscribersCount int64 `json:"subscribersCount"`
	IsSubscribed     bool  `json:"isSubscribed"`
}

type HistoryEntry struct {
	Video
	WatchedAt time.Time `json:"watchedAt"`
}

type LikedVideo struct {
	Video
	LikedAt time.Time `json:"likedAt"`
}

type Comment struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"videoId"`
	Content    string    `json:"content"`
	LikesCount int64     `json:"likesCount"`
	IsLiked    bool      `json:"isLiked"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Owner      Owner     `json:"owner"`
}

type Tweet struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	LikesCount int64     `json:"likesCount"`
	IsLiked    bool      `json:"isLiked"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Owner      Owner     `json:"owner"`
}

type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	VideoCount  int64     `json:"videoCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Owner       Owner     `json:"owner"`
}

type PlaylistDetail struct {
	Playlist
	Videos []Video `json:"videos"`
}

type Channel struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	FullName           string    `json:"fullName"`
	Avatar             string    `json:"avatar,omitempty"`
	CoverImage         string    `json:"coverImage,omitempty"`
	SubscribersCount   int64     `json:"subscribersCount"`
	SubscriptionsCount int64     `json:"subscriptionsCount"`
	IsSubscribed       bool      `json:"isSubscribed"`
	CreatedAt          time.Time `json:"createdAt"`
}

// ChannelCard is one row of a subscriber or subscription listing.
// IsSubscribed is relative to the viewer, Since to the listed edge.
type ChannelCard struct {
	Owner
	SubscribersCount int64     `json:"subscribersCount"`
	IsSubscribed     bool      `json:"isSubscribed"`
	Since            time.Time `json:"subscribedAt"`
}

type Stats struct {
	TotalVideos        int64 `json:"totalVideos"`
	TotalViews         int64 `json:"totalViews"`
	TotalLikes         int64 `json:"totalLikes"`
	TotalComments      int64 `json:"totalComments"`
	SubscribersCount   int64 `json:"subscribersCount"`
	SubscriptionsCount int64 `json:"subscriptionsCount"`
}

var (
	VideoSort = paging.Policy{
		Fields: map[string]string{
			"createdAt": "v.created_at",
			"duration":  "v.duration_seconds",
			"views":     "v.views",
			"title":     "v.title",
		},
		DefaultField: "createdAt",
		Tiebreak:     []string{"v.created_at", "v.id"},
	}
	CommentSort = paging.Policy{
		Fields:       map[string]string{"createdAt": "c.created_at"},
		DefaultField: "createdAt",
		Tiebreak:     []string{"c.created_at", "c.id"},
	}
	TweetSort = paging.Policy{
		Fields:       map[string]string{"createdAt": "t.created_at"},
		DefaultField: "createdAt",
		DefaultDesc:  true,
		Tiebreak:     []string{"t.created_at", "t.id"},
	}
	PlaylistSort = paging.Policy{
		Fields: map[string]string{
			"createdAt": "p.created_at",
			"name":      "p.name",
		},
		DefaultField: "createdAt",
		DefaultDesc:  true,
		Tiebreak:     []string{"p.created_at", "p.id"},
	}
)

const ownerColumns = `u.id, u.username, u.full_name, COALESCE(u.avatar_url, '')`

const videoColumns = `v.id, v.title, v.description, v.video_url, v.thumbnail_url,
	v.duration_seconds, v.views, v.is_published,
	(SELECT count(*) FROM relations r WHERE r.target_kind = 'video' AND r.target_id = v.id),
	v.created_at, v.updated_at, ` + ownerColumns

// visibleTo admits published videos plus the viewer's own. The viewer is
// the given placeholder, "" for anonymous.
func visibleTo(placeholder string) string {
	return `(v.is_published OR v.owner_id = NULLIF(` + placeholder + `, '')::uuid)`
}

func scanVideo(row pgx.Row, extra ...any) (Video, error) {
	var v Video
	dest := []any{
		&v.ID, &v.Title, &v.Description, &v.VideoURL, &v.Thumbnail,
		&v.Duration, &v.Views, &v.IsPublished, &v.LikesCount,
		&v.CreatedAt, &v.UpdatedAt,
		&v.Owner.ID, &v.Owner.Username, &v.Owner.FullName, &v.Owner.Avatar,
	}
	err := row.Scan(append(dest, extra...)...)
	return v, err
}

// collect drains rows through scan. The result is never nil.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
