package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

const eventColumns = `id, division, title, content, is_published, is_pinned, view_count,
	created_by, updated_by, deleted_at, created_at, updated_at`

// EventRepo manages explanation events. Deletion is logical: deleted_at
// is set and every read below filters on deleted_at IS NULL.
type EventRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

// NewEventRepo constructs an EventRepo. The sqlx handle shares the pool.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db, x: sqlx.NewDb(db, "mysql")}
}

// EventSearchQuery defines filters and pagination for listing events.
type EventSearchQuery struct {
	Division      model.Division
	Keyword       string
	PublishedOnly bool
	Page          Page
}

// Predicate renders the filter part of q.
func (q EventSearchQuery) Predicate() Predicate {
	return And(
		IsNull("deleted_at"),
		When(q.Division != "", Eq("division", string(q.Division))),
		When(q.PublishedOnly, Eq("is_published", true)),
		Or(Like("title", q.Keyword), Like("content", q.Keyword)),
	)
}

// Create inserts an event and reloads it.
func (r *EventRepo) Create(ctx context.Context, e *model.Event, actorID uint64) error {
	const q = `INSERT INTO explanation_events (division, title, content, is_published, is_pinned, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, string(e.Division), e.Title, e.Content, e.Published, e.Pinned, actorID, actorID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = created
	return nil
}

// GetByID returns a live event. Deleted events yield ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	return r.get(ctx, r.x, id)
}

// GetByIDTx reads the event inside a reservation transaction. The event
// row is never locked; only its schedule is.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Event, error) {
	var e model.Event
	err := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM explanation_events WHERE id = ? AND deleted_at IS NULL`, id).
		Scan(&e.ID, &e.Division, &e.Title, &e.Content, &e.Published, &e.Pinned, &e.ViewCount,
			&e.CreatedBy, &e.UpdatedBy, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.Event{}, mapDBError(err)
	}
	return e, nil
}

func (r *EventRepo) get(ctx context.Context, q sqlx.QueryerContext, id uint64) (model.Event, error) {
	var e model.Event
	err := sqlx.GetContext(ctx, q, &e,
		`SELECT `+eventColumns+` FROM explanation_events WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return model.Event{}, mapDBError(err)
	}
	return e, nil
}

// Update writes the editable fields of a live event.
func (r *EventRepo) Update(ctx context.Context, e model.Event, actorID uint64) error {
	const q = `UPDATE explanation_events
		SET division = ?, title = ?, content = ?, is_pinned = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, string(e.Division), e.Title, e.Content, e.Pinned, actorID, e.ID)
	if err != nil {
		return err
	}
	return r.ensureAffected(ctx, res, e.ID)
}

// SetPublished toggles the publication flag.
func (r *EventRepo) SetPublished(ctx context.Context, id uint64, published bool, actorID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE explanation_events SET is_published = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`, published, actorID, id)
	if err != nil {
		return err
	}
	return r.ensureAffected(ctx, res, id)
}

// SoftDelete marks an event deleted. Its schedules and reservations stay.
func (r *EventRepo) SoftDelete(ctx context.Context, id uint64, actorID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE explanation_events SET deleted_at = CURRENT_TIMESTAMP, updated_by = ?
		 WHERE id = ? AND deleted_at IS NULL`, actorID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews bumps the public view counter.
func (r *EventRepo) IncrementViews(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE explanation_events SET view_count = view_count + 1 WHERE id = ? AND deleted_at IS NULL`, id)
	return err
}

// List returns one page of events matching q with the total match count.
// Pinned events sort first, then newest.
func (r *EventRepo) List(ctx context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	cond, args := Where(q.Predicate())
	var total int64
	if err := sqlx.GetContext(ctx, r.x, &total, `SELECT COUNT(*) FROM explanation_events WHERE `+cond, args...); err != nil {
		return nil, 0, err
	}
	page := q.Page.Normalize()
	out := []model.Event{}
	err := sqlx.SelectContext(ctx, r.x, &out,
		`SELECT `+eventColumns+` FROM explanation_events WHERE `+cond+`
		 ORDER BY is_pinned DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(append([]any{}, args...), page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ensureAffected distinguishes a missing row from an update that changed
// nothing, since MySQL reports changed rows rather than matched rows.
func (r *EventRepo) ensureAffected(ctx context.Context, res sql.Result, id uint64) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}
