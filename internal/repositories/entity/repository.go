package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const table = "entities"

var columns = []string{"id", "entity_type", "name", "confidence", "sources", "person", "organization", "metadata", "created_at", "updated_at"}

// Row is the persisted shape of an entity. Variant payloads are JSONB columns.
type Row struct {
	ID           string                                     `db:"id"`
	EntityType   string                                     `db:"entity_type"`
	Name         string                                     `db:"name"`
	Confidence   float64                                    `db:"confidence"`
	Sources      database.JSONB[[]string]                   `db:"sources"`
	Person       database.JSONB[*models.PersonFields]       `db:"person"`
	Organization database.JSONB[*models.OrganizationFields] `db:"organization"`
	Metadata     database.JSONB[map[string]any]             `db:"metadata"`
	CreatedAt    time.Time                                  `db:"created_at"`
	UpdatedAt    time.Time                                  `db:"updated_at"`
}

func toRow(e *models.Entity) Row {
	return Row{
		ID:           e.ID,
		EntityType:   string(e.Type),
		Name:         e.Name,
		Confidence:   e.Confidence,
		Sources:      database.NewJSONB(e.Sources),
		Person:       database.NewJSONB(e.Person),
		Organization: database.NewJSONB(e.Organization),
		Metadata:     database.NewJSONB(e.Metadata),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (r Row) toEntity() *models.Entity {
	return &models.Entity{
		ID:           r.ID,
		Type:         models.EntityType(r.EntityType),
		Name:         r.Name,
		Confidence:   r.Confidence,
		Sources:      r.Sources.GetValue(),
		Person:       r.Person.GetValue(),
		Organization: r.Organization.GetValue(),
		Metadata:     r.Metadata.GetValue(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// Repository is the PostgreSQL entity store
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func searchQuery(t models.EntityType, limit int) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_type", "name")
	sb.From(table)
	if t != "" {
		sb.Where(sb.Equal("entity_type", string(t)))
	}
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}
	return sb.Build()
}

// Search lists summaries of one type ordered by id. A limit of zero or less returns all.
func (r *Repository) Search(ctx context.Context, t models.EntityType, limit int) ([]models.EntitySummary, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Search")
	defer span.End()

	query, args := searchQuery(t, limit)
	var rows []Row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_type", t).Error("Failed to search entities")
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}

	out := make([]models.EntitySummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.EntitySummary{ID: row.ID, Type: models.EntityType(row.EntityType), Name: row.Name})
	}
	return out, nil
}

// GetAllEntities lists summaries of every type ordered by id
func (r *Repository) GetAllEntities(ctx context.Context, limit int) ([]models.EntitySummary, error) {
	return r.Search(ctx, "", limit)
}

func getQuery(id string, forUpdate bool) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))
	if forUpdate {
		sb.ForUpdate()
	}
	return sb.Build()
}

// Get returns the entity, or nil when it does not exist
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	query, args := getQuery(id, false)
	var row Row
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", id).Error("Failed to get entity")
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return row.toEntity(), nil
}

// Update applies a partial update inside a transaction holding the row lock
func (r *Repository) Update(ctx context.Context, id string, update models.EntityUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Update")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query, args := getQuery(id, true)
	var row Row
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", models.ErrEntityNotFound, id)
		}
		return fmt.Errorf("failed to lock entity %s: %w", id, err)
	}

	entity := row.toEntity()
	update.Apply(entity)
	if err := entity.Validate(); err != nil {
		return err
	}

	query, args = updateQuery(toRow(entity))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", id).Error("Failed to update entity")
		return fmt.Errorf("failed to update entity %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

func updateQuery(row Row) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("name", row.Name),
		ub.Assign("confidence", row.Confidence),
		ub.Assign("sources", row.Sources),
		ub.Assign("person", row.Person),
		ub.Assign("organization", row.Organization),
		ub.Assign("metadata", row.Metadata),
		ub.Assign("updated_at", row.UpdatedAt),
	)
	ub.Where(ub.Equal("id", row.ID))
	return ub.Build()
}

// Delete removes an entity. A missing id reports ErrEntityNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Delete")
	defer span.End()

	dq := database.NewDeleteBuilder()
	dq.DeleteFrom(table)
	dq.Where(dq.Equal("id", id))
	query, args := dq.Build()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", id).Error("Failed to delete entity")
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", models.ErrEntityNotFound, id)
	}
	return nil
}

func upsertQuery(rows []Row) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, row := range rows {
		ib.Values(row.ID, row.EntityType, row.Name, row.Confidence, row.Sources, row.Person, row.Organization, row.Metadata, row.CreatedAt, row.UpdatedAt)
	}
	ib.OnConflictUpdate([]string{"id"}, "entity_type", "name", "confidence", "sources", "person", "organization", "metadata", "updated_at")
	return ib.Build()
}

// Upsert inserts or replaces entities in batches. Every entity is validated first.
func (r *Repository) Upsert(ctx context.Context, entities ...*models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Upsert")
	defer span.End()

	rows := make([]Row, 0, len(entities))
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
		rows = append(rows, toRow(e))
	}
	if len(rows) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const batchSize = 500
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		query, args := upsertQuery(rows[i:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("batch_start", i).Error("Failed to upsert entities")
			return fmt.Errorf("failed to upsert entities: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithField("count", len(rows)).Info("Upserted entities")
	return nil
}
