package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alagamento-br/apiserver/types"
)

// ownerColumns whitelists the tables FindOwner may query and the column
// holding the owning user id.
var ownerColumns = map[string]string{
	"incidents": "user_id",
}

// IncidentRepository handles persistence for incidents.
type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// List returns every incident joined with its author, newest first.
func (r *IncidentRepository) List(ctx context.Context) ([]types.IncidentView, error) {
	const query = `
		SELECT i.id, i.description, i.latitude, i.longitude, i.city, i.occurred_at, i.photo_key,
		       u.id, u.name, u.email, u.role
		FROM incidents i
		LEFT JOIN users u ON i.user_id = u.id
		ORDER BY i.occurred_at DESC, i.id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.IncidentView, 0)
	for rows.Next() {
		var (
			item        types.IncidentView
			photoKey    sql.NullString
			authorID    sql.NullInt64
			authorName  sql.NullString
			authorEmail sql.NullString
			authorRole  sql.NullString
		)
		if err := rows.Scan(
			&item.ID,
			&item.Description,
			&item.Location.Latitude,
			&item.Location.Longitude,
			&item.Location.City,
			&item.OccurredAt,
			&photoKey,
			&authorID,
			&authorName,
			&authorEmail,
			&authorRole,
		); err != nil {
			return nil, err
		}
		if photoKey.Valid {
			key := photoKey.String
			item.PhotoKey = &key
		}
		if authorID.Valid {
			item.Author = &types.Author{
				ID:    int(authorID.Int64),
				Name:  authorName.String,
				Email: authorEmail.String,
				Role:  types.Role(authorRole.String),
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *IncidentRepository) Get(ctx context.Context, id int) (types.Incident, error) {
	const query = `
		SELECT id, user_id, description, latitude, longitude, city, photo_key, occurred_at
		FROM incidents
		WHERE id = $1`
	var (
		incident types.Incident
		authorID sql.NullInt64
		photoKey sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&incident.ID,
		&authorID,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.City,
		&photoKey,
		&incident.OccurredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Incident{}, ErrNotFound
		}
		return types.Incident{}, err
	}
	if authorID.Valid {
		author := int(authorID.Int64)
		incident.AuthorID = &author
	}
	if photoKey.Valid {
		key := photoKey.String
		incident.PhotoKey = &key
	}
	return incident, nil
}

func (r *IncidentRepository) Create(ctx context.Context, incident types.Incident) (types.Incident, error) {
	incident.OccurredAt = time.Now()

	const query = `
		INSERT INTO incidents (user_id, description, latitude, longitude, city, photo_key, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		incident.AuthorID,
		incident.Description,
		incident.Latitude,
		incident.Longitude,
		incident.City,
		incident.PhotoKey,
		incident.OccurredAt,
	).Scan(&incident.ID); err != nil {
		if isForeignKeyViolation(err) {
			return types.Incident{}, ErrUnknownAuthor
		}
		return types.Incident{}, err
	}
	return incident, nil
}

// UpdateOwned replaces the non-empty fields of the incident when the caller
// is an admin or still its author. The ownership predicate is part of the
// statement, so a concurrent ownership change cannot slip between check and
// write. Zero affected rows is reported as ErrNotFound.
func (r *IncidentRepository) UpdateOwned(ctx context.Context, id int, description, city string, callerID int, isAdmin bool) (types.Incident, error) {
	const query = `
		UPDATE incidents
		SET description = COALESCE(NULLIF($1, ''), description),
			city = COALESCE(NULLIF($2, ''), city)
		WHERE id = $3 AND ($4::boolean OR user_id = $5)
		RETURNING id, user_id, description, latitude, longitude, city, photo_key, occurred_at`
	var (
		incident types.Incident
		authorID sql.NullInt64
		photoKey sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, description, city, id, isAdmin, callerID).Scan(
		&incident.ID,
		&authorID,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.City,
		&photoKey,
		&incident.OccurredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Incident{}, ErrNotFound
		}
		return types.Incident{}, err
	}
	if authorID.Valid {
		author := int(authorID.Int64)
		incident.AuthorID = &author
	}
	if photoKey.Valid {
		key := photoKey.String
		incident.PhotoKey = &key
	}
	return incident, nil
}

// DeleteOwned removes the incident under the same predicate as UpdateOwned
// and returns the photo key of the deleted row, if any.
func (r *IncidentRepository) DeleteOwned(ctx context.Context, id, callerID int, isAdmin bool) (*string, error) {
	const query = `
		DELETE FROM incidents
		WHERE id = $1 AND ($2::boolean OR user_id = $3)
		RETURNING photo_key`
	var photoKey sql.NullString
	err := r.db.QueryRowContext(ctx, query, id, isAdmin, callerID).Scan(&photoKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !photoKey.Valid {
		return nil, nil
	}
	key := photoKey.String
	return &key, nil
}

// CountByCity counts incidents whose city matches exactly (case-sensitive).
func (r *IncidentRepository) CountByCity(ctx context.Context, city string) (int, error) {
	const query = `SELECT COUNT(1) FROM incidents WHERE city = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, query, city).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// FindOwner resolves the owning user id of a row. found is false when the
// row does not exist or has no owner.
func (r *IncidentRepository) FindOwner(ctx context.Context, table string, id int) (int, bool, error) {
	query, err := ownerQuery(table)
	if err != nil {
		return 0, false, err
	}

	var owner sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !owner.Valid {
		return 0, false, nil
	}
	return int(owner.Int64), true, nil
}

func ownerQuery(table string) (string, error) {
	column, ok := ownerColumns[table]
	if !ok {
		return "", fmt.Errorf("owner lookup not supported for table %q", table)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", column, table), nil
}
