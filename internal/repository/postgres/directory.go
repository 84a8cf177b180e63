package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
)

// DirectoryRepo reads users, recipient lists and recipients from tables
// kept in sync with the recipient directory.
type DirectoryRepo struct{ db *sql.DB }

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

func (r *DirectoryRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DomainID, &u.Email)
	if err != nil {
		return nil, notFoundOr(err, "get user %s", id)
	}
	return &u, nil
}

func (r *DirectoryRepo) GetList(ctx context.Context, ref string) (*domain.RecipientList, error) {
	var (
		l       domain.RecipientList
		deleted sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT ref, owner_id, domain_id, name, deleted_at
		FROM recipient_lists WHERE ref = $1
	`, ref).Scan(&l.Ref, &l.OwnerID, &l.DomainID, &l.Name, &deleted)
	if err != nil {
		return nil, notFoundOr(err, "get list %s", ref)
	}
	l.DeletedAt = timePtr(deleted)
	return &l, nil
}

func (r *DirectoryRepo) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	var (
		rc      domain.Recipient
		deleted sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, domain_id, first_name, last_name, phone, email, device_token, deleted_at
		FROM recipients WHERE id = $1
	`, id).Scan(&rc.ID, &rc.DomainID, &rc.FirstName, &rc.LastName, &rc.Phone, &rc.Email, &rc.DeviceToken, &deleted)
	if err != nil {
		return nil, notFoundOr(err, "get recipient %s", id)
	}
	rc.DeletedAt = timePtr(deleted)
	return &rc, nil
}

// ResolveList returns the live members of a live list in insertion order.
func (r *DirectoryRepo) ResolveList(ctx context.Context, ref string) ([]string, error) {
	var live bool
	err := r.db.QueryRowContext(ctx,
		`SELECT deleted_at IS NULL FROM recipient_lists WHERE ref = $1`, ref).Scan(&live)
	if err != nil {
		return nil, notFoundOr(err, "get list %s", ref)
	}
	if !live {
		return nil, fmt.Errorf("list %s is deleted: %w", ref, domain.ErrNotFound)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT m.recipient_id
		FROM list_members m
		JOIN recipients rc ON rc.id = m.recipient_id
		WHERE m.list_ref = $1 AND rc.deleted_at IS NULL
		ORDER BY m.position`, ref)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", ref, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
