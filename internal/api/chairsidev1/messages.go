// Package chairsidev1 holds the JSON request and response messages of
// the chairside.v1 API. The gRPC and HTTP transports share them.
package chairsidev1

import "time"

const (
	ServiceName = "chairside.v1.BookingsService"
	DateLayout  = "2006-01-02"
)

type Booking struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	PractitionerID  string    `json:"practitioner_id"`
	RoomID          string    `json:"room_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

type ResourceSlots struct {
	Resource string `json:"resource"`
	Slots    []Slot `json:"slots"`
}

// Template is one day of a resource's weekly working hours. Window
// bounds are clinic-local "HH:MM".
type Template struct {
	Resource    string    `json:"resource"`
	DayOfWeek   int       `json:"day_of_week"`
	WindowStart string    `json:"window_start"`
	WindowEnd   string    `json:"window_end"`
	IsAvailable bool      `json:"is_available"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type CreateBookingRequest struct {
	PatientID      string    `json:"patient_id"`
	PractitionerID string    `json:"practitioner_id"`
	RoomID         string    `json:"room_id"`
	StartTime      time.Time `json:"start_time"`
	// Either EndTime or DurationMinutes.
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Type            string     `json:"type"`
	Notes           string     `json:"notes,omitempty"`
}

type CreateBookingResponse struct {
	Booking Booking `json:"booking"`
}

type GetBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type GetBookingResponse struct {
	Booking Booking `json:"booking"`
}

type ListBookingsRequest struct {
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	Resource         string    `json:"resource,omitempty"`
	PatientID        string    `json:"patient_id,omitempty"`
	IncludeCancelled bool      `json:"include_cancelled,omitempty"`
}

type ListBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
}

type MoveBookingRequest struct {
	BookingID      string     `json:"booking_id"`
	PractitionerID string     `json:"practitioner_id,omitempty"`
	RoomID         string     `json:"room_id,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

type MoveBookingResponse struct {
	Booking Booking `json:"booking"`
}

type ResizeBookingRequest struct {
	BookingID       string `json:"booking_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

type ResizeBookingResponse struct {
	Booking Booking `json:"booking"`
}

type SetBookingStatusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type SetBookingStatusResponse struct {
	Booking Booking `json:"booking"`
}

type UpdateBookingDetailsRequest struct {
	BookingID string  `json:"booking_id"`
	Type      *string `json:"type,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type UpdateBookingDetailsResponse struct {
	Booking Booking `json:"booking"`
}

type DeleteBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type DeleteBookingResponse struct{}

type GetSlotsRequest struct {
	Resource           string `json:"resource"`
	Date               string `json:"date"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type GetSlotsResponse struct {
	Resource string `json:"resource"`
	Date     string `json:"date"`
	Slots    []Slot `json:"slots"`
}

type GetAvailabilityRequest struct {
	Resources          []string `json:"resources"`
	Date               string   `json:"date"`
	GranularityMinutes int      `json:"granularity_minutes,omitempty"`
}

type GetAvailabilityResponse struct {
	Date      string          `json:"date"`
	Resources []ResourceSlots `json:"resources"`
}

type UpsertTemplateRequest struct {
	Template Template `json:"template"`
}

type UpsertTemplateResponse struct {
	Template Template `json:"template"`
}

type ListTemplatesRequest struct {
	Resource string `json:"resource"`
}

type ListTemplatesResponse struct {
	Templates []Template `json:"templates"`
}

// ErrorBody is the HTTP error payload.
type ErrorBody struct {
	Error   string   `json:"error"`
	Reason  string   `json:"reason,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}
