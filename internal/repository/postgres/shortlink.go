package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// ShortLinkRepo stores short links and their hit counters.
type ShortLinkRepo struct{ db *sql.DB }

func NewShortLinkRepo(db *sql.DB) *ShortLinkRepo { return &ShortLinkRepo{db: db} }

func (r *ShortLinkRepo) CreateShortLink(ctx context.Context, l *domain.ShortLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO short_links (id, source_url, destination_url, created_at)
		VALUES ($1, $2, $3, $4)
	`, l.ID, l.SourceURL, l.DestinationURL, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create short link: %w", err)
	}
	return nil
}

// UpdateShortLink rewrites the URLs; counters are untouched.
func (r *ShortLinkRepo) UpdateShortLink(ctx context.Context, l *domain.ShortLink) error {
	if !validID(l.ID) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE short_links SET source_url = $2, destination_url = $3 WHERE id = $1
	`, l.ID, l.SourceURL, l.DestinationURL)
	if err != nil {
		return fmt.Errorf("update short link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ShortLinkRepo) GetShortLink(ctx context.Context, id string) (*domain.ShortLink, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var (
		l       domain.ShortLink
		lastHit sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_url, destination_url, hit_count, last_hit_at, created_at
		FROM short_links WHERE id = $1
	`, id).Scan(&l.ID, &l.SourceURL, &l.DestinationURL, &l.HitCount, &lastHit, &l.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "get short link %s", id)
	}
	l.LastHitAt = timePtr(lastHit)
	return &l, nil
}

// RecordHit bumps hit_count and stamps last_hit_at in one statement.
func (r *ShortLinkRepo) RecordHit(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE short_links SET hit_count = hit_count + 1, last_hit_at = $2 WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
