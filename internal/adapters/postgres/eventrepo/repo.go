package eventrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/campscout/event-logistics-api/internal/adapters/postgres"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	"github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
)

// Repo is a Postgres implementation of eventrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, e eventrepo.Event) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	eventUUID, err := uuid.Parse(string(e.ID))
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (
				external_id,
				title,
				start_date,
				end_date,
				structure_name,
				notes,
				detached_leaders,
				guests,
				revision,
				created_by,
				created_at,
				updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			eventUUID,
			e.Title,
			datePtr(e.StartDate),
			datePtr(e.EndDate),
			e.StructureName,
			e.Notes,
			e.DetachedLeaders,
			e.Guests,
			e.Revision,
			string(e.CreatedBy),
			e.CreatedAt.UTC(),
			e.UpdatedAt.UTC(),
		)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode && pe.ConstraintName == "events_external_id_unique" {
				return eventrepo.ErrAlreadyExists
			}
			return err
		}
		return replaceSegments(ctx, tx, eventUUID, e.Segments)
	})
}

func (r *Repo) Save(ctx context.Context, e eventrepo.Event, expectedRevision int64) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	eventUUID, err := uuid.Parse(string(e.ID))
	if err != nil {
		return eventrepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE events
			SET title = $3,
			    start_date = $4,
			    end_date = $5,
			    structure_name = $6,
			    notes = $7,
			    detached_leaders = $8,
			    guests = $9,
			    revision = $10,
			    updated_at = $11
			WHERE external_id = $1 AND revision = $2
		`,
			eventUUID,
			expectedRevision,
			e.Title,
			datePtr(e.StartDate),
			datePtr(e.EndDate),
			e.StructureName,
			e.Notes,
			e.DetachedLeaders,
			e.Guests,
			e.Revision,
			e.UpdatedAt.UTC(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE external_id = $1)`, eventUUID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return eventrepo.ErrNotFound
			}
			return eventrepo.ErrRevisionConflict
		}
		return replaceSegments(ctx, tx, eventUUID, e.Segments)
	})
}

const selectEventColumns = `
	SELECT
		e.id,
		e.external_id,
		e.title,
		e.start_date,
		e.end_date,
		e.structure_name,
		e.notes,
		e.detached_leaders,
		e.guests,
		e.revision,
		e.created_by,
		e.created_at,
		e.updated_at
	FROM events e
`

func (r *Repo) GetByID(ctx context.Context, id domain.EventID) (eventrepo.Event, error) {
	if r.pool == nil {
		return eventrepo.Event{}, errors.New("nil postgres pool")
	}
	eventUUID, err := uuid.Parse(string(id))
	if err != nil {
		return eventrepo.Event{}, eventrepo.ErrNotFound
	}

	internalID, e, err := scanEvent(r.pool.QueryRow(ctx, selectEventColumns+` WHERE e.external_id = $1`, eventUUID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventrepo.Event{}, eventrepo.ErrNotFound
		}
		return eventrepo.Event{}, err
	}
	segs, err := loadSegments(ctx, r.pool, []int64{internalID})
	if err != nil {
		return eventrepo.Event{}, err
	}
	e.Segments = segs[internalID]
	return e, nil
}

func (r *Repo) List(ctx context.Context) ([]eventrepo.Event, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, selectEventColumns+`
		ORDER BY
			e.start_date ASC NULLS LAST,
			e.created_at ASC,
			e.external_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []eventrepo.Event
		ids []int64
	)
	for rows.Next() {
		internalID, e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, internalID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	segs, err := loadSegments(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Segments = segs[ids[i]]
	}
	return out, nil
}

func scanEvent(row pgx.Row) (int64, eventrepo.Event, error) {
	var (
		internalID int64
		extID      uuid.UUID
		e          eventrepo.Event
		startDate  pgtype.Date
		endDate    pgtype.Date
		createdBy  string
	)
	if err := row.Scan(
		&internalID,
		&extID,
		&e.Title,
		&startDate,
		&endDate,
		&e.StructureName,
		&e.Notes,
		&e.DetachedLeaders,
		&e.Guests,
		&e.Revision,
		&createdBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return 0, eventrepo.Event{}, err
	}
	e.ID = domain.EventID(extID.String())
	e.StartDate = dateToTimePtr(startDate)
	e.EndDate = dateToTimePtr(endDate)
	e.CreatedBy = domain.SubjectID(createdBy)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return internalID, e, nil
}

func loadSegments(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, eventIDs []int64) (map[int64][]logistics.BranchSegment, error) {
	out := make(map[int64][]logistics.BranchSegment, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT event_id, branch, start_date, end_date, youth_count, leaders_count, kambusieri_count, accommodation, notes
		FROM event_segments
		WHERE event_id = ANY($1)
		ORDER BY event_id, sort_order
	`, eventIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID       int64
			branch        string
			start, end    pgtype.Date
			accommodation string
			s             logistics.BranchSegment
		)
		if err := rows.Scan(&eventID, &branch, &start, &end, &s.YouthCount, &s.LeadersCount, &s.KambusieriCount, &accommodation, &s.Notes); err != nil {
			return nil, err
		}
		s.Branch = logistics.Branch(branch)
		s.Accommodation = logistics.Accommodation(accommodation)
		if start.Valid {
			s.StartDate = start.Time.UTC()
		}
		if end.Valid {
			s.EndDate = end.Time.UTC()
		}
		out[eventID] = append(out[eventID], s)
	}
	return out, rows.Err()
}

// replaceSegments rewrites the segment list of an event, keeping input order in sort_order.
func replaceSegments(ctx context.Context, tx pgx.Tx, eventUUID uuid.UUID, segs []logistics.BranchSegment) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM event_segments
		WHERE event_id = (SELECT id FROM events WHERE external_id = $1)
	`, eventUUID)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, s := range segs {
		batch.Queue(`
			INSERT INTO event_segments (
				event_id, sort_order, branch, start_date, end_date,
				youth_count, leaders_count, kambusieri_count, accommodation, notes
			) VALUES (
				(SELECT id FROM events WHERE external_id = $1),
				$2,$3,$4,$5,$6,$7,$8,$9,$10
			)
		`,
			eventUUID,
			i,
			string(s.Branch),
			dateValue(s.StartDate),
			dateValue(s.EndDate),
			s.YouthCount,
			s.LeadersCount,
			s.KambusieriCount,
			string(s.Accommodation),
			s.Notes,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func datePtr(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return dateValue(*t)
}

func dateValue(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	tt := t.UTC()
	return pgtype.Date{
		Time:  time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}

func dateToTimePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time.UTC()
	return &t
}
