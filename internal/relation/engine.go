// Package relation maintains directed actor→target edges. An edge's
// existence is the boolean state: a like on a video, comment or tweet, or a
// subscription to a channel.
package relation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/paging"
)

type Kind string

const (
	KindVideo   Kind = "video"
	KindComment Kind = "comment"
	KindTweet   Kind = "tweet"
	KindChannel Kind = "channel"
)

func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindComment, KindTweet, KindChannel:
		return true
	}
	return false
}

type State string

const (
	Added   State = "added"
	Removed State = "removed"
)

type Edge struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	Kind      Kind      `json:"targetKind"`
	TargetID  string    `json:"targetId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Result struct {
	State State `json:"state"`
	Edge  *Edge `json:"edge,omitempty"`
}

// ErrDuplicateEdge means a concurrent toggle inserted the same edge between
// our delete and our insert.
var ErrDuplicateEdge = errors.New("relation: duplicate edge")

const maxToggleAttempts = 5

const edgeColumns = `id, actor_id, target_kind, target_id, created_at`

type Engine struct {
	db database.DBTX
}

func NewEngine(db database.DBTX) *Engine {
	return &Engine{db: db}
}

// Toggle removes the edge if it exists and creates it otherwise. Both steps
// are single conditional statements; a lost insert race restarts the whole
// toggle, so N concurrent toggles on one key leave the edge present iff N
// is odd.
func (e *Engine) Toggle(ctx context.Context, actorID string, kind Kind, targetID string) (Result, error) {
	if !kind.Valid() {
		return Result{}, apperr.Invalid("unknown relation kind")
	}

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		res, err := e.toggleOnce(ctx, actorID, kind, targetID)
		if errors.Is(err, ErrDuplicateEdge) {
			continue
		}
		return res, err
	}
	return Result{}, apperr.New(apperr.Conflict, "relation is changing too quickly, try again")
}

func (e *Engine) toggleOnce(ctx context.Context, actorID string, kind Kind, targetID string) (Result, error) {
	_, err := scanEdge(e.db.QueryRow(ctx,
		`DELETE FROM relations WHERE actor_id = $1 AND target_kind = $2 AND target_id = $3
		 RETURNING `+edgeColumns,
		actorID, string(kind), targetID,
	))
	if err == nil {
		return Result{State: Removed}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Result{}, apperr.FromStore(err, "relation")
	}

	// The target row is share-locked so a concurrent delete of the target
	// either waits for this edge and purges it, or hides the target from us.
	edge, err := scanEdge(e.db.QueryRow(ctx,
		`INSERT INTO relations (actor_id, target_kind, target_id)
		 SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM `+targetTables[kind]+` WHERE id = $3 FOR SHARE)
		 ON CONFLICT (actor_id, target_kind, target_id) DO NOTHING
		 RETURNING `+edgeColumns,
		actorID, string(kind), targetID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := e.TargetExists(ctx, kind, targetID)
		if existsErr != nil {
			return Result{}, existsErr
		}
		if !exists {
			return Result{}, apperr.Missing(string(kind) + " not found")
		}
		return Result{}, ErrDuplicateEdge
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Result{}, ErrDuplicateEdge
	}
	if err != nil {
		return Result{}, apperr.FromStore(err, "relation")
	}
	return Result{State: Added, Edge: &edge}, nil
}

// HasEdge is false for an anonymous actor.
func (e *Engine) HasEdge(ctx context.Context, actorID string, kind Kind, targetID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	var exists bool
	err := e.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM relations WHERE actor_id = $1 AND target_kind = $2 AND target_id = $3)`,
		actorID, string(kind), targetID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.FromStore(err, "relation")
	}
	return exists, nil
}

func (e *Engine) CountActors(ctx context.Context, kind Kind, targetID string) (int64, error) {
	var n int64
	err := e.db.QueryRow(ctx,
		`SELECT count(*) FROM relations WHERE target_kind = $1 AND target_id = $2`,
		string(kind), targetID,
	).Scan(&n)
	if err != nil {
		return 0, apperr.FromStore(err, "relation")
	}
	return n, nil
}

func (e *Engine) CountTargets(ctx context.Context, actorID string, kind Kind) (int64, error) {
	var n int64
	err := e.db.QueryRow(ctx,
		`SELECT count(*) FROM relations WHERE actor_id = $1 AND target_kind = $2`,
		actorID, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, apperr.FromStore(err, "relation")
	}
	return n, nil
}

// EdgeSort is the paging policy for edge listings.
var EdgeSort = paging.Policy{
	Fields:       map[string]string{"createdAt": "created_at"},
	DefaultField: "createdAt",
	Tiebreak:     []string{"created_at", "id"},
}

func edgeOrder(p paging.Params) string {
	if p.Column == "" {
		return "ORDER BY created_at ASC, id ASC"
	}
	return p.OrderBy()
}

// ListActors returns the edges pointing at target, oldest first unless p
// says otherwise.
func (e *Engine) ListActors(ctx context.Context, kind Kind, targetID string, p paging.Params) ([]Edge, error) {
	return e.list(ctx,
		`SELECT `+edgeColumns+` FROM relations WHERE target_kind = $1 AND target_id = $2
		 `+edgeOrder(p)+` LIMIT $3 OFFSET $4`,
		string(kind), targetID, p.Limit, p.Offset(),
	)
}

// ListTargets returns the edges leaving actor, oldest first.
func (e *Engine) ListTargets(ctx context.Context, actorID string, kind Kind, p paging.Params) ([]Edge, error) {
	return e.list(ctx,
		`SELECT `+edgeColumns+` FROM relations WHERE actor_id = $1 AND target_kind = $2
		 `+edgeOrder(p)+` LIMIT $3 OFFSET $4`,
		actorID, string(kind), p.Limit, p.Offset(),
	)
}

func (e *Engine) list(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.FromStore(err, "relation")
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, apperr.FromStore(err, "relation")
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.FromStore(err, "relation")
	}
	return edges, nil
}

func scanEdge(row pgx.Row) (Edge, error) {
	var edge Edge
	var kind string
	err := row.Scan(&edge.ID, &edge.ActorID, &kind, &edge.TargetID, &edge.CreatedAt)
	edge.Kind = Kind(kind)
	return edge, err
}

var targetTables = map[Kind]string{
	KindVideo:   "videos",
	KindComment: "comments",
	KindTweet:   "tweets",
	KindChannel: "users",
}

// TargetExists reports whether the record a kind of edge points at exists.
func (e *Engine) TargetExists(ctx context.Context, kind Kind, targetID string) (bool, error) {
	table, ok := targetTables[kind]
	if !ok {
		return false, apperr.Invalid("unknown relation kind")
	}
	var exists bool
	err := e.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`,
		targetID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.FromStore(err, string(kind))
	}
	return exists, nil
}
