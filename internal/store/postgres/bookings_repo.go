package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"

	practitionerOverlapConstraint = "bookings_practitioner_no_overlap"
	roomOverlapConstraint         = "bookings_room_no_overlap"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *BookingRepo) FindBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, err := findBooking(ctx, r.db, id, false)
	return b, store.Wrap("find booking", err)
}

func (r *BookingRepo) ListActiveByResource(ctx context.Context, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error) {
	rows, err := listActiveByResource(ctx, r.db, ref, window)
	return rows, store.Wrap("list active bookings", err)
}

func (r *BookingRepo) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().
		Model(&rows).
		Where("start_time < ?", filter.WindowEnd).
		Where("end_time > ?", filter.WindowStart).
		OrderExpr("start_time ASC")

	if filter.Resource != nil {
		col, err := resourceColumn(filter.Resource.Kind)
		if err != nil {
			return nil, err
		}
		q = q.Where("? = ?", bun.Ident(col), filter.Resource.ID)
	}
	if filter.PatientID != uuid.Nil {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if !filter.IncludeCancelled {
		q = q.Where("status <> ?", domain.BookingStatusCancelled)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, store.Wrap("list bookings", err)
	}
	return rows, nil
}

// InTransaction returns errors from fn unchanged; only failures to
// begin or commit are wrapped.
func (r *BookingRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	var fnErr error
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fnErr = fn(ctx, bookingTx{tx: tx})
		return fnErr
	})
	if err != nil && fnErr != nil {
		return fnErr
	}
	return store.Wrap("transaction", err)
}

// Lock takes a transaction-scoped advisory lock per key. Locks are
// released on commit or rollback.
func (t bookingTx) Lock(ctx context.Context, keys ...store.LockKey) error {
	for _, k := range store.SortedKeys(keys) {
		if _, err := t.tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", string(k)).Exec(ctx); err != nil {
			return store.Wrap("lock "+string(k), err)
		}
	}
	return nil
}

func (t bookingTx) FindBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, err := findBooking(ctx, t.tx, id, true)
	return b, store.Wrap("find booking", err)
}

func (t bookingTx) ListActiveByResource(ctx context.Context, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error) {
	rows, err := listActiveByResource(ctx, t.tx, ref, window)
	return rows, store.Wrap("list active bookings", err)
}

func (t bookingTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b

	// A duplicate id is an idempotent replay; DO NOTHING keeps the
	// transaction usable so the stored row can be compared.
	res, err := t.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if overlap := overlapError(pgErr); overlap != nil {
				return domain.Booking{}, overlap
			}
		}
		return domain.Booking{}, store.Wrap("insert booking", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, store.Wrap("insert booking", err)
	}
	if affected == 0 {
		existing, err := findBooking(ctx, t.tx, m.ID, false)
		if err != nil {
			return domain.Booking{}, store.Wrap("insert booking", err)
		}
		if !existing.SameRequest(b) {
			return domain.Booking{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}

	return m, nil
}

func (t bookingTx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b

	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("patient_id", "practitioner_id", "room_id", "start_time", "end_time", "type", "status", "notes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if overlap := overlapError(pgErr); overlap != nil {
				return domain.Booking{}, overlap
			}
		}
		return domain.Booking{}, store.Wrap("update booking", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, store.Wrap("update booking", err)
	}
	if affected == 0 {
		return domain.Booking{}, store.ErrNotFound
	}
	return m, nil
}

func (t bookingTx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return store.Wrap("delete booking", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Wrap("delete booking", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func findBooking(ctx context.Context, db bun.IDB, id uuid.UUID, forUpdate bool) (domain.Booking, error) {
	var b domain.Booking
	q := db.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func listActiveByResource(ctx context.Context, db bun.IDB, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error) {
	col, err := resourceColumn(ref.Kind)
	if err != nil {
		return nil, err
	}

	var rows []domain.Booking
	err = db.NewSelect().
		Model(&rows).
		Where("? = ?", bun.Ident(col), ref.ID).
		Where("status <> ?", domain.BookingStatusCancelled).
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func resourceColumn(kind domain.ResourceKind) (string, error) {
	switch kind {
	case domain.ResourceKindPractitioner:
		return "practitioner_id", nil
	case domain.ResourceKindRoom:
		return "room_id", nil
	}
	return "", fmt.Errorf("unknown resource kind %q", kind)
}

func overlapError(pgErr *pgconn.PgError) error {
	if pgErr.Code != pgExclusionViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case practitionerOverlapConstraint:
		return store.ErrPractitionerOverlap
	case roomOverlapConstraint:
		return store.ErrRoomOverlap
	}
	return store.ErrConflict
}
