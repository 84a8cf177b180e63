package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	c.id, c.owner_id, c.channel, c.title, c.subject, c.content,
	c.frequency_id, c.start_at, c.end_at, c.task_id, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM blasts b WHERE b.campaign_id = c.id)`

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c      domain.Campaign
		freq   sql.NullInt64
		start  sql.NullTime
		end    sql.NullTime
		taskID sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Channel, &c.Title, &c.Subject, &c.Content,
		&freq, &start, &end, &taskID, &c.CreatedAt, &c.UpdatedAt,
		&c.BlastCount,
	)
	if err != nil {
		return nil, err
	}
	if freq.Valid {
		f := domain.FrequencyID(freq.Int64)
		c.FrequencyID = &f
	}
	c.StartAt = timePtr(start)
	c.EndAt = timePtr(end)
	c.TaskID = stringPtr(taskID)
	return &c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get campaign %s", id)
	}
	refs, err := r.listRefs(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ListRefs = refs
	return c, nil
}

// ListByDomain returns campaigns whose owner belongs to domainID.
func (r *CampaignRepo) ListByDomain(ctx context.Context, domainID string) ([]domain.Campaign, error) {
	return r.list(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns c
		JOIN users u ON u.id = c.owner_id
		WHERE u.domain_id = $1
		ORDER BY c.created_at DESC`, domainID)
}

// ListScheduled returns every campaign with a scheduler task attached.
func (r *CampaignRepo) ListScheduled(ctx context.Context) ([]domain.Campaign, error) {
	return r.list(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns c
		WHERE c.task_id IS NOT NULL
		ORDER BY c.created_at`)
}

func (r *CampaignRepo) list(ctx context.Context, q string, args ...any) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	var ids []string
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	refs, err := r.refsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ListRefs = refs[out[i].ID]
	}
	return out, nil
}

func (r *CampaignRepo) refsFor(ctx context.Context, ids []string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, list_ref FROM campaign_lists
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id, position`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list campaign lists: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(ids))
	for rows.Next() {
		var id, ref string
		if err := rows.Scan(&id, &ref); err != nil {
			return nil, fmt.Errorf("scan campaign list: %w", err)
		}
		out[id] = append(out[id], ref)
	}
	return out, rows.Err()
}

// Create inserts the campaign and its list associations in one transaction.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, owner_id, channel, title, subject, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.OwnerID, c.Channel, c.Title, c.Subject, c.Content, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	if err := insertRefs(ctx, tx, c.ID, c.ListRefs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update writes the editable fields and replaces the list associations.
func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	if !validID(c.ID) {
		return domain.ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET title = $2, subject = $3, content = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.Title, c.Subject, c.Content, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_lists WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear campaign lists: %w", err)
	}
	if err := insertRefs(ctx, tx, c.ID, c.ListRefs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRefs(ctx context.Context, tx *sql.Tx, campaignID string, refs []string) error {
	for i, ref := range refs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_lists (campaign_id, list_ref, position) VALUES ($1, $2, $3)
			ON CONFLICT (campaign_id, list_ref) DO NOTHING
		`, campaignID, ref, i)
		if err != nil {
			return fmt.Errorf("insert campaign list %s: %w", ref, err)
		}
	}
	return nil
}

func (r *CampaignRepo) SetSchedule(ctx context.Context, id string, taskID *string, spec *domain.ScheduleSpec) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	var (
		freq       sql.NullInt64
		start, end sql.NullTime
		task       sql.NullString
	)
	if taskID != nil {
		task = sql.NullString{String: *taskID, Valid: true}
	}
	if spec != nil {
		start, end = nullTime(spec.StartAt), nullTime(spec.EndAt)
		if spec.Frequency != nil {
			freq = sql.NullInt64{Int64: int64(*spec.Frequency), Valid: true}
		}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET task_id = $2, frequency_id = $3, start_at = $4, end_at = $5, updated_at = NOW()
		WHERE id = $1
	`, id, task, freq, start, end)
	if err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the campaign. Blasts, sends, send links and list
// associations go with it through ON DELETE CASCADE; short links stay.
func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) ListRefs(ctx context.Context, campaignID string) ([]string, error) {
	if !validID(campaignID) {
		return nil, domain.ErrNotFound
	}
	refs, err := r.listRefs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		return refs, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, campaignID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return refs, nil
}

func (r *CampaignRepo) listRefs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT list_ref FROM campaign_lists WHERE campaign_id = $1 ORDER BY position`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign lists: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan list ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
