package grpc

import (
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store"
)

// ErrorDomain is the ErrorInfo domain attached to every rejection.
const ErrorDomain = "chairside"

func statusWithReason(code codes.Code, msg string, reasons []scheduling.Reason, md map[string]string) error {
	st := status.New(code, msg)
	if len(reasons) == 0 {
		return st.Err()
	}

	info := &errdetails.ErrorInfo{
		Reason:   string(reasons[0]),
		Domain:   ErrorDomain,
		Metadata: md,
	}
	if len(reasons) > 1 {
		if info.Metadata == nil {
			info.Metadata = map[string]string{}
		}
		parts := make([]string, 0, len(reasons))
		for _, r := range reasons {
			parts = append(parts, string(r))
		}
		info.Metadata["reasons"] = strings.Join(parts, ",")
	}

	withDetails, err := st.WithDetails(info)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

func invalidArgument(log *slog.Logger, reason string, msg string) error {
	log.Warn("invalid request", slog.String("reason", reason))
	return statusWithReason(codes.InvalidArgument, msg, []scheduling.Reason{scheduling.ReasonInvalidArgument}, nil)
}

// rpcError maps a service error to a status. Storage and unexpected
// failures are logged and hidden behind a generic message.
func rpcError(log *slog.Logger, op string, err error, attrs ...any) error {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return statusWithReason(codes.InvalidArgument, vErr.Error(), []scheduling.Reason{vErr.Reason}, nil)
	}

	var cErr *scheduling.ConflictError
	if errors.As(err, &cErr) {
		log.Info(op+" conflict", append(attrs, slog.String("resources", cErr.Error()))...)
		ids := make([]string, 0, len(cErr.BookingIDs))
		for _, id := range cErr.BookingIDs {
			ids = append(ids, id.String())
		}
		var md map[string]string
		if len(ids) > 0 {
			md = map[string]string{"booking_ids": strings.Join(ids, ",")}
		}
		return statusWithReason(codes.FailedPrecondition,
			"The practitioner or room is already booked during that time. Pick a different slot.",
			cErr.Reasons(), md)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info(op+" not found", attrs...)
		return statusWithReason(codes.NotFound, "booking not found", []scheduling.Reason{scheduling.ReasonNotFound}, nil)
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict", attrs...)
		return statusWithReason(codes.FailedPrecondition,
			"This request key was already used for a different booking. Try again.",
			[]scheduling.Reason{scheduling.ReasonIdempotencyConflict}, nil)
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" conflict", attrs...)
		return statusWithReason(codes.FailedPrecondition,
			"The practitioner or room is already booked during that time. Pick a different slot.",
			scheduling.ReasonsOf(err), nil)
	}

	log.Error(op+" failed", append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Internal, "internal error")
}
