package scheduling

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/events"
	"chairside/backend/internal/metrics"
	"chairside/backend/internal/store"
)

const (
	maxNotesLength          = 2000
	maxIdempotencyKeyLength = 256
)

// Engine applies booking mutations. Every mutation runs in one store
// transaction that locks the booking and the resources it will occupy,
// validates the candidate state and only then writes.
type Engine struct {
	repo store.BookingRepository
	cfg  Config
	deps deps
}

func NewEngine(repo store.BookingRepository, cfg Config, opts ...Option) *Engine {
	return &Engine{
		repo: repo,
		cfg:  cfg.withDefaults(),
		deps: newDeps(opts),
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

type CreateInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	RoomID         uuid.UUID
	Start          time.Time
	// Either End or DurationMinutes; when both are set they must agree.
	End             time.Time
	DurationMinutes int
	Type            domain.BookingType
	Notes           string
	IdempotencyKey  string
}

func (e *Engine) Create(ctx context.Context, in CreateInput) (out domain.Booking, err error) {
	replayed := false
	started := e.deps.now()
	defer func() { e.record("create", started, err, replayed) }()

	if in.PatientID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "patient_id is required")
	}
	if in.PractitionerID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "practitioner_id is required")
	}
	if in.RoomID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "room_id is required")
	}
	if err := validateType(in.Type); err != nil {
		return domain.Booking{}, err
	}
	if len(in.Notes) > maxNotesLength {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "notes too long")
	}

	interval, err := e.createInterval(in)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := e.validateDuration(interval.Duration()); err != nil {
		return domain.Booking{}, err
	}

	candidate := domain.Booking{
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		RoomID:         in.RoomID,
		StartTime:      interval.Start,
		EndTime:        interval.End,
		Type:           in.Type,
		Status:         domain.BookingStatusScheduled,
		Notes:          in.Notes,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLength {
			return domain.Booking{}, validationError(ReasonInvalidArgument, "idempotency_key too long")
		}
		candidate.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("chairside:create_booking:"+in.PatientID.String()+":"+key))
	}

	err = e.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		if candidate.ID != uuid.Nil {
			if err := tx.Lock(ctx, store.BookingLock(candidate.ID)); err != nil {
				return err
			}
			existing, err := tx.FindBooking(ctx, candidate.ID)
			switch {
			case err == nil:
				if !existing.SameRequest(candidate) {
					return store.ErrIdempotencyConflict
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		if err := lockResources(ctx, tx, candidate); err != nil {
			return err
		}
		if err := NewConflictIndex(tx).Check(ctx, candidate.PractitionerID, candidate.RoomID, interval, uuid.Nil); err != nil {
			return err
		}
		if err := e.validateGrid(interval.Duration()); err != nil {
			return err
		}

		inserted, err := tx.InsertBooking(ctx, candidate)
		if err != nil {
			return backstopConflict(err, candidate)
		}
		out = inserted
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	if replayed {
		e.deps.logger.Debug("create replayed", "booking_id", out.ID.String())
		return out, nil
	}
	e.publish(ctx, events.KindCreated, &out, nil)
	return out, nil
}

func (e *Engine) createInterval(in CreateInput) (domain.Interval, error) {
	if in.Start.IsZero() {
		return domain.Interval{}, validationError(ReasonInvalidInterval, "start_time is required")
	}
	if in.DurationMinutes < 0 {
		return domain.Interval{}, validationError(ReasonInvalidDuration, "duration_minutes must not be negative")
	}
	if err := e.checkMinutes(in.DurationMinutes); in.DurationMinutes != 0 && err != nil {
		return domain.Interval{}, err
	}

	start := in.Start.UTC()
	end := in.End.UTC()
	switch {
	case in.End.IsZero() && in.DurationMinutes == 0:
		return domain.Interval{}, validationError(ReasonInvalidInterval, "end_time or duration_minutes is required")
	case in.End.IsZero():
		end = start.Add(minutes(in.DurationMinutes))
	case in.DurationMinutes != 0 && !end.Equal(start.Add(minutes(in.DurationMinutes))):
		return domain.Interval{}, validationError(ReasonInvalidInterval, "end_time and duration_minutes disagree")
	}

	interval := domain.NewInterval(start, end)
	if !interval.Valid() {
		return domain.Interval{}, validationError(ReasonInvalidInterval, "end_time must be after start_time")
	}
	return interval, nil
}

type MoveInput struct {
	BookingID uuid.UUID
	// Zero ids keep the booking's current practitioner or room.
	PractitionerID uuid.UUID
	RoomID         uuid.UUID
	Start          time.Time
	// Zero End keeps the current duration.
	End time.Time
}

// Move places an existing booking at a new start and optionally on new
// resources. The booking never conflicts with itself, so moving it onto
// its current slot always succeeds.
func (e *Engine) Move(ctx context.Context, in MoveInput) (out domain.Booking, err error) {
	defer e.observe("move", e.deps.now(), &err)

	if in.BookingID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "booking_id is required")
	}
	if in.Start.IsZero() {
		return domain.Booking{}, validationError(ReasonInvalidInterval, "start_time is required")
	}
	if !in.End.IsZero() {
		requested := domain.NewInterval(in.Start, in.End)
		if !requested.Valid() {
			return domain.Booking{}, validationError(ReasonInvalidInterval, "end_time must be after start_time")
		}
		if err := e.validateDuration(requested.Duration()); err != nil {
			return domain.Booking{}, err
		}
	}

	var previous domain.Booking
	err = e.mutate(ctx, in.BookingID, func(ctx context.Context, tx store.BookingTx, current domain.Booking) (domain.Booking, bool, error) {
		previous = current

		next := current
		next.StartTime = in.Start.UTC()
		if in.End.IsZero() {
			next.EndTime = next.StartTime.Add(current.Interval().Duration())
		} else {
			next.EndTime = in.End.UTC()
		}
		if in.PractitionerID != uuid.Nil {
			next.PractitionerID = in.PractitionerID
		}
		if in.RoomID != uuid.Nil {
			next.RoomID = in.RoomID
		}

		if sameSlot(current, next) {
			return current, false, nil
		}
		if next.Active() {
			if err := lockResources(ctx, tx, next); err != nil {
				return domain.Booking{}, false, err
			}
			if err := NewConflictIndex(tx).Check(ctx, next.PractitionerID, next.RoomID, next.Interval(), next.ID); err != nil {
				return domain.Booking{}, false, err
			}
		}
		if !in.End.IsZero() {
			if err := e.validateGrid(next.Interval().Duration()); err != nil {
				return domain.Booking{}, false, err
			}
		}
		return next, true, nil
	}, &out)
	if err != nil {
		return domain.Booking{}, err
	}

	if !sameSlot(previous, out) {
		e.publish(ctx, events.KindMoved, &out, &previous)
	}
	return out, nil
}

// Resize keeps the start and sets a new duration.
func (e *Engine) Resize(ctx context.Context, bookingID uuid.UUID, durationMinutes int) (out domain.Booking, err error) {
	defer e.observe("resize", e.deps.now(), &err)

	if bookingID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "booking_id is required")
	}
	if err := e.checkMinutes(durationMinutes); err != nil {
		return domain.Booking{}, err
	}
	if err := e.validateDuration(minutes(durationMinutes)); err != nil {
		return domain.Booking{}, err
	}

	var previous domain.Booking
	err = e.mutate(ctx, bookingID, func(ctx context.Context, tx store.BookingTx, current domain.Booking) (domain.Booking, bool, error) {
		previous = current

		next := current
		next.EndTime = current.StartTime.Add(minutes(durationMinutes))
		if next.EndTime.Equal(current.EndTime) {
			return current, false, nil
		}
		if next.Active() {
			if err := lockResources(ctx, tx, next); err != nil {
				return domain.Booking{}, false, err
			}
			if err := NewConflictIndex(tx).Check(ctx, next.PractitionerID, next.RoomID, next.Interval(), next.ID); err != nil {
				return domain.Booking{}, false, err
			}
		}
		if err := e.validateGrid(minutes(durationMinutes)); err != nil {
			return domain.Booking{}, false, err
		}
		return next, true, nil
	}, &out)
	if err != nil {
		return domain.Booking{}, err
	}

	if !previous.EndTime.Equal(out.EndTime) {
		e.publish(ctx, events.KindResized, &out, &previous)
	}
	return out, nil
}

// SetStatus allows any transition between the four statuses. Taking a
// cancelled booking back to an active status re-validates its interval,
// since the slot may have been rebooked in the meantime.
func (e *Engine) SetStatus(ctx context.Context, bookingID uuid.UUID, status domain.BookingStatus) (out domain.Booking, err error) {
	defer e.observe("set_status", e.deps.now(), &err)

	if bookingID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "booking_id is required")
	}
	if !status.Valid() {
		return domain.Booking{}, validationError(ReasonInvalidStatus, "unknown status "+string(status))
	}

	var previous domain.Booking
	err = e.mutate(ctx, bookingID, func(ctx context.Context, tx store.BookingTx, current domain.Booking) (domain.Booking, bool, error) {
		previous = current
		if current.Status == status {
			return current, false, nil
		}

		next := current
		next.Status = status
		if !current.Active() && next.Active() {
			if err := lockResources(ctx, tx, next); err != nil {
				return domain.Booking{}, false, err
			}
			if err := NewConflictIndex(tx).Check(ctx, next.PractitionerID, next.RoomID, next.Interval(), next.ID); err != nil {
				return domain.Booking{}, false, err
			}
		}
		return next, true, nil
	}, &out)
	if err != nil {
		return domain.Booking{}, err
	}

	if previous.Status != out.Status {
		e.publish(ctx, events.KindStatusChanged, &out, &previous)
	}
	return out, nil
}

func (e *Engine) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return e.SetStatus(ctx, bookingID, domain.BookingStatusCancelled)
}

type DetailsInput struct {
	Type  *domain.BookingType
	Notes *string
}

// UpdateDetails edits fields that do not affect the schedule.
func (e *Engine) UpdateDetails(ctx context.Context, bookingID uuid.UUID, in DetailsInput) (out domain.Booking, err error) {
	defer e.observe("update_details", e.deps.now(), &err)

	if bookingID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "booking_id is required")
	}
	if in.Type == nil && in.Notes == nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "nothing to update")
	}
	if in.Type != nil {
		if err := validateType(*in.Type); err != nil {
			return domain.Booking{}, err
		}
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLength {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "notes too long")
	}

	var previous domain.Booking
	changed := false
	err = e.mutate(ctx, bookingID, func(ctx context.Context, tx store.BookingTx, current domain.Booking) (domain.Booking, bool, error) {
		previous = current
		next := current
		if in.Type != nil {
			next.Type = *in.Type
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		changed = next.Type != current.Type || next.Notes != current.Notes
		return next, changed, nil
	}, &out)
	if err != nil {
		return domain.Booking{}, err
	}

	if changed {
		e.publish(ctx, events.KindUpdated, &out, &previous)
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	if bookingID == uuid.Nil {
		return domain.Booking{}, validationError(ReasonInvalidArgument, "booking_id is required")
	}
	b, err := e.repo.FindBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, notFound(err, bookingID)
	}
	return b, nil
}

func (e *Engine) List(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	filter.WindowStart = filter.WindowStart.UTC()
	filter.WindowEnd = filter.WindowEnd.UTC()
	if filter.WindowStart.IsZero() || filter.WindowEnd.IsZero() {
		return nil, validationError(ReasonInvalidInterval, "window_start and window_end are required")
	}
	if !filter.WindowEnd.After(filter.WindowStart) {
		return nil, validationError(ReasonInvalidInterval, "window_end must be after window_start")
	}
	if filter.Resource != nil && (!filter.Resource.Kind.Valid() || filter.Resource.ID == uuid.Nil) {
		return nil, validationError(ReasonInvalidArgument, "invalid resource")
	}
	return e.repo.ListBookings(ctx, filter)
}

// Delete removes a booking permanently. Cancelling keeps the row.
func (e *Engine) Delete(ctx context.Context, bookingID uuid.UUID) (err error) {
	defer e.observe("delete", e.deps.now(), &err)

	if bookingID == uuid.Nil {
		return validationError(ReasonInvalidArgument, "booking_id is required")
	}

	var previous domain.Booking
	err = e.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.Lock(ctx, store.BookingLock(bookingID)); err != nil {
			return err
		}
		current, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return notFound(err, bookingID)
		}
		if err := tx.DeleteBooking(ctx, bookingID); err != nil {
			return notFound(err, bookingID)
		}
		previous = current
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.KindDeleted, nil, &previous)
	return nil
}

type mutation func(ctx context.Context, tx store.BookingTx, current domain.Booking) (next domain.Booking, write bool, err error)

// mutate locks and loads a booking, lets fn build the next state and
// writes it when fn asks to.
func (e *Engine) mutate(ctx context.Context, bookingID uuid.UUID, fn mutation, out *domain.Booking) error {
	return e.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.Lock(ctx, store.BookingLock(bookingID)); err != nil {
			return err
		}
		current, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return notFound(err, bookingID)
		}

		next, write, err := fn(ctx, tx, current)
		if err != nil {
			return err
		}
		if !write {
			*out = current
			return nil
		}

		updated, err := tx.UpdateBooking(ctx, next)
		if err != nil {
			return backstopConflict(notFound(err, bookingID), next)
		}
		*out = updated
		return nil
	})
}

// validateDuration checks the bounds of d. Grid alignment is checked
// separately by validateGrid, after conflicts, so that a request that
// overlaps an existing booking is reported as a conflict.
func (e *Engine) validateDuration(d time.Duration) error {
	g := e.cfg.Granularity
	switch {
	case d < g:
		return validationError(ReasonInvalidDuration, "duration must be at least "+g.String())
	case d > e.cfg.MaxDuration:
		return validationError(ReasonInvalidDuration, "duration must not exceed "+e.cfg.MaxDuration.String())
	}
	return nil
}

// checkMinutes bounds a caller-supplied minute count before it is
// converted, so that it cannot overflow time.Duration.
func (e *Engine) checkMinutes(n int) error {
	if n <= 0 || n > int(e.cfg.MaxDuration/time.Minute) {
		return validationError(ReasonInvalidDuration, "duration_minutes must be between 1 and "+strconv.Itoa(int(e.cfg.MaxDuration/time.Minute)))
	}
	return nil
}

func (e *Engine) validateGrid(d time.Duration) error {
	if d%e.cfg.Granularity != 0 {
		return validationError(ReasonInvalidDuration, "duration must be a multiple of "+e.cfg.Granularity.String())
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, current, previous *domain.Booking) {
	ev := events.New(kind, current, previous, e.deps.now())
	err := e.deps.publisher.Publish(ctx, ev)
	e.deps.metrics.ObserveEvent(string(kind), err)
	if err != nil {
		e.deps.logger.Warn("publish event failed",
			"kind", string(kind),
			"booking_id", ev.BookingID.String(),
			"err", err,
		)
	}
}

func (e *Engine) observe(op string, started time.Time, errp *error) {
	e.record(op, started, *errp, false)
}

// record counts an operation. An idempotent replay that returned the
// stored booking is labelled separately from a fresh write.
func (e *Engine) record(op string, started time.Time, err error, replayed bool) {
	outcome := metrics.OutcomeOK
	switch reason := ReasonOf(err); {
	case err == nil && replayed:
		outcome = metrics.OutcomeReplayed
	case err == nil:
	case reason == ReasonPractitionerConflict || reason == ReasonRoomConflict:
		outcome = metrics.OutcomeConflict
		var cErr *ConflictError
		if errors.As(err, &cErr) {
			for _, r := range cErr.Resources {
				e.deps.metrics.ObserveConflict(string(r.Kind))
			}
		}
	case reason == ReasonNotFound:
		outcome = metrics.OutcomeNotFound
	case reason == ReasonIdempotencyConflict:
		outcome = metrics.OutcomeIdempotent
	case reason != "":
		outcome = metrics.OutcomeInvalid
	default:
		outcome = metrics.OutcomeError
		e.deps.logger.Error("booking operation failed", "op", op, "err", err)
	}
	e.deps.metrics.ObserveOperation(op, outcome, e.deps.now().Sub(started))
}

func lockResources(ctx context.Context, tx store.BookingTx, b domain.Booking) error {
	return tx.Lock(ctx, store.ResourceLock(b.Practitioner()), store.ResourceLock(b.Room()))
}

func validateType(t domain.BookingType) error {
	if t == "" {
		return validationError(ReasonInvalidType, "type is required")
	}
	if !t.Valid() {
		return validationError(ReasonInvalidType, "unknown booking type "+string(t))
	}
	return nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		var nErr *NotFoundError
		if errors.As(err, &nErr) {
			return err
		}
		return &NotFoundError{ID: id}
	}
	return err
}

// backstopConflict turns an overlap rejected by the store itself into
// the same ConflictError the engine's own check produces.
func backstopConflict(err error, b domain.Booking) error {
	switch {
	case errors.Is(err, store.ErrPractitionerOverlap):
		return &ConflictError{Resources: []domain.ResourceRef{b.Practitioner()}}
	case errors.Is(err, store.ErrRoomOverlap):
		return &ConflictError{Resources: []domain.ResourceRef{b.Room()}}
	case errors.Is(err, store.ErrConflict):
		return &ConflictError{Resources: []domain.ResourceRef{b.Practitioner(), b.Room()}}
	}
	return err
}

func sameSlot(a, b domain.Booking) bool {
	return a.Interval().Equal(b.Interval()) && a.PractitionerID == b.PractitionerID && a.RoomID == b.RoomID
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
