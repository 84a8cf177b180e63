package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// BlastRepo stores blasts, their sends and the send-to-link attribution.
type BlastRepo struct{ db *sql.DB }

func NewBlastRepo(db *sql.DB) *BlastRepo { return &BlastRepo{db: db} }

// counterColumns whitelists the columns IncrementField may touch; the
// column name is interpolated into SQL.
var counterColumns = map[domain.BlastField]string{
	domain.FieldSends:   "sends",
	domain.FieldClicks:  "clicks",
	domain.FieldReplies: "replies",
	domain.FieldOpens:   "opens",
}

// CreateBlast inserts b. Re-inserting the same id is a no-op reported as
// created == false.
func (r *BlastRepo) CreateBlast(ctx context.Context, b *domain.Blast) (bool, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO blasts (id, campaign_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, b.ID, b.CampaignID, b.CreatedAt)
	if isFKViolation(err) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("create blast: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const blastColumns = `id, campaign_id, sends, clicks, replies, opens, created_at`

func scanBlast(row rowScanner) (*domain.Blast, error) {
	var b domain.Blast
	err := row.Scan(&b.ID, &b.CampaignID, &b.Sends, &b.Clicks, &b.Replies, &b.Opens, &b.CreatedAt)
	return &b, err
}

func (r *BlastRepo) GetBlast(ctx context.Context, id string) (*domain.Blast, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	b, err := scanBlast(r.db.QueryRowContext(ctx, `SELECT `+blastColumns+` FROM blasts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get blast %s", id)
	}
	return b, nil
}

func (r *BlastRepo) ListBlasts(ctx context.Context, campaignID string) ([]domain.Blast, error) {
	if !validID(campaignID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+blastColumns+` FROM blasts
		WHERE campaign_id = $1
		ORDER BY created_at DESC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list blasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Blast
	for rows.Next() {
		b, err := scanBlast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blast: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// IncrementField adds delta to one counter in a single UPDATE, so
// concurrent increments never lose updates.
func (r *BlastRepo) IncrementField(ctx context.Context, blastID string, field domain.BlastField, delta int64) error {
	col, ok := counterColumns[field]
	if !ok {
		return fmt.Errorf("unknown blast field %q", field)
	}
	if !validID(blastID) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE blasts SET %s = %s + $1 WHERE id = $2`, col, col), delta, blastID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SyncSendCount sets the sends counter to the number of Send rows the blast
// has and returns the counter before and after. The previous value is read
// under a row lock so concurrent syncs report disjoint deltas.
func (r *BlastRepo) SyncSendCount(ctx context.Context, blastID string) (prev, cur int64, err error) {
	if !validID(blastID) {
		return 0, 0, domain.ErrNotFound
	}
	err = r.db.QueryRowContext(ctx, `
		WITH prev AS (SELECT sends FROM blasts WHERE id = $1 FOR UPDATE)
		UPDATE blasts SET sends = (SELECT COUNT(*) FROM sends WHERE blast_id = $1)
		FROM prev
		WHERE blasts.id = $1
		RETURNING prev.sends, blasts.sends
	`, blastID).Scan(&prev, &cur)
	if err != nil {
		return 0, 0, notFoundOr(err, "sync sends %s", blastID)
	}
	return prev, cur, nil
}

// RecordSend upserts the send on (blast_id, recipient_id) and attributes
// linkIDs to it, in one transaction. On conflict send.ID is replaced by the
// stored id and created is false.
func (r *BlastRepo) RecordSend(ctx context.Context, send *domain.Send, linkIDs []string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer rollback(tx)

	var (
		id      string
		created bool
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sends (id, blast_id, recipient_id, sent_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (blast_id, recipient_id) DO UPDATE SET sent_at = EXCLUDED.sent_at
		RETURNING id, (xmax = 0)
	`, send.ID, send.BlastID, send.RecipientID, send.SentAt).Scan(&id, &created)
	if isFKViolation(err) {
		return false, fmt.Errorf("blast %s: %w", send.BlastID, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("upsert send: %w", err)
	}
	send.ID = id

	for _, linkID := range linkIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO send_links (short_link_id, send_id) VALUES ($1, $2)
			ON CONFLICT (short_link_id) DO UPDATE SET send_id = EXCLUDED.send_id
		`, linkID, id)
		if isFKViolation(err) {
			return false, fmt.Errorf("short link %s: %w", linkID, domain.ErrNotFound)
		}
		if err != nil {
			return false, fmt.Errorf("attach link %s: %w", linkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit send: %w", err)
	}
	return created, nil
}

func (r *BlastRepo) ListSends(ctx context.Context, blastID string) ([]domain.Send, error) {
	if !validID(blastID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, blast_id, recipient_id, sent_at FROM sends
		WHERE blast_id = $1
		ORDER BY sent_at`, blastID)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	var out []domain.Send
	for rows.Next() {
		var s domain.Send
		if err := rows.Scan(&s.ID, &s.BlastID, &s.RecipientID, &s.SentAt); err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SendForLink returns the send a short link was rendered into.
func (r *BlastRepo) SendForLink(ctx context.Context, shortLinkID string) (*domain.Send, error) {
	if !validID(shortLinkID) {
		return nil, domain.ErrNotFound
	}
	var s domain.Send
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.blast_id, s.recipient_id, s.sent_at
		FROM send_links sl
		JOIN sends s ON s.id = sl.send_id
		WHERE sl.short_link_id = $1
	`, shortLinkID).Scan(&s.ID, &s.BlastID, &s.RecipientID, &s.SentAt)
	if err != nil {
		return nil, notFoundOr(err, "send for link %s", shortLinkID)
	}
	return &s, nil
}
