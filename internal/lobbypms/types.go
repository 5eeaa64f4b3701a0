package lobbypms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexString decodes a JSON string or number into a string. The PMS emits
// numeric identifiers sometimes quoted and sometimes not.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexFloat decodes a JSON number or numeric string into a float64.
// Monetary amounts arrive as strings like "100.00" on some endpoints.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Holder is the booking holder sub-object.
type Holder struct {
	Name           string `json:"name"`
	Surname        string `json:"surname"`
	SecondSurname  string `json:"second_surname"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Country        string `json:"country"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
}

// AssignedRoom is the room assignment sub-object. For shared/dorm bookings
// Name is actually the bed identifier and the room name lives on Category.
type AssignedRoom struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Category is the room category sub-object.
type Category struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
	Type string     `json:"type"`
}

// RawReservation mirrors one reservation payload from the PMS. The API is
// not consistent about field names across endpoints and versions, so both
// field families are declared and the accessor methods below encode the
// preference order in exactly one place. Always go through the accessors.
type RawReservation struct {
	BookingID FlexString `json:"booking_id"`
	ID        FlexString `json:"id"`

	Holder     *Holder `json:"holder"`
	GuestName  string  `json:"guest_name"`
	GuestEmail string  `json:"guest_email"`
	GuestPhone string  `json:"guest_phone"`

	StartDate    string `json:"start_date"`
	CheckInDate  string `json:"check_in_date"`
	EndDate      string `json:"end_date"`
	CheckOutDate string `json:"check_out_date"`
	ArrivalTime  string `json:"arrival_time"`
	CreatedAt    string `json:"created_at"`
	BookingDate  string `json:"booking_date"`

	AssignedRoom    *AssignedRoom `json:"assigned_room"`
	Category        *Category     `json:"category"`
	RoomNumber      string        `json:"room_number"`
	RoomDescription string        `json:"room_description"`

	Status        string `json:"status"`
	CheckedIn     *bool  `json:"checked_in"`
	CheckedOut    *bool  `json:"checked_out"`
	PaymentStatus string `json:"payment_status"`

	PaidOut                 *FlexFloat `json:"paid_out"`
	TotalToPay              *FlexFloat `json:"total_to_pay"`
	TotalToPayAccommodation *FlexFloat `json:"total_to_pay_accommodation"`
	Currency                string     `json:"currency"`

	CheckinOnline bool       `json:"checkin_online"`
	PropertyID    FlexString `json:"property_id"`
}

// ExternalID returns the PMS booking identifier, preferring booking_id over
// the generic id.
func (r *RawReservation) ExternalID() string {
	if r.BookingID != "" {
		return string(r.BookingID)
	}
	return string(r.ID)
}

// GuestFullName assembles the holder's full name, falling back to the flat
// guest_name field.
func (r *RawReservation) GuestFullName() string {
	if r.Holder != nil && r.Holder.Name != "" && r.Holder.Surname != "" {
		name := r.Holder.Name + " " + r.Holder.Surname
		if r.Holder.SecondSurname != "" {
			name += " " + r.Holder.SecondSurname
		}
		return strings.TrimSpace(name)
	}
	if r.GuestName != "" {
		return r.GuestName
	}
	return "Unknown"
}

// GuestEmailAddress prefers the holder email over the flat field.
func (r *RawReservation) GuestEmailAddress() string {
	if r.Holder != nil && r.Holder.Email != "" {
		return r.Holder.Email
	}
	return r.GuestEmail
}

// GuestPhoneNumber prefers the holder phone over the flat field.
func (r *RawReservation) GuestPhoneNumber() string {
	if r.Holder != nil && r.Holder.Phone != "" {
		return r.Holder.Phone
	}
	return r.GuestPhone
}

// GuestNationality returns the holder country, if any.
func (r *RawReservation) GuestNationality() string {
	if r.Holder != nil {
		return r.Holder.Country
	}
	return ""
}

// CheckInRaw returns the check-in date string, preferring start_date.
func (r *RawReservation) CheckInRaw() string {
	if r.StartDate != "" {
		return r.StartDate
	}
	return r.CheckInDate
}

// CheckOutRaw returns the check-out date string, preferring end_date.
func (r *RawReservation) CheckOutRaw() string {
	if r.EndDate != "" {
		return r.EndDate
	}
	return r.CheckOutDate
}

// CreatedAtRaw returns the creation timestamp string, preferring created_at.
func (r *RawReservation) CreatedAtRaw() string {
	if r.CreatedAt != "" {
		return r.CreatedAt
	}
	return r.BookingDate
}

// IsSharedRoom reports whether the booking is for a shared/dorm category.
func (r *RawReservation) IsSharedRoom() bool {
	if r.AssignedRoom != nil && isSharedRoomType(r.AssignedRoom.Type) {
		return true
	}
	return r.Category != nil && isSharedRoomType(r.Category.Type)
}

func isSharedRoomType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "shared") || strings.Contains(t, "dorm") || strings.Contains(t, "compartid")
}

// RoomFields resolves the room number and description. For shared/dorm
// bookings the assigned room name is the bed identifier and the category
// name is the actual room; for private rooms the number stays empty and the
// description carries the assigned room name.
func (r *RawReservation) RoomFields() (roomNumber, roomDescription string) {
	if r.IsSharedRoom() {
		if r.AssignedRoom != nil {
			roomNumber = r.AssignedRoom.Name
		}
		if r.Category != nil && r.Category.Name != "" {
			roomDescription = r.Category.Name
		} else {
			roomDescription = r.RoomDescription
		}
		return roomNumber, roomDescription
	}

	if r.AssignedRoom != nil && r.AssignedRoom.Name != "" {
		roomDescription = r.AssignedRoom.Name
	} else if r.RoomDescription != "" {
		roomDescription = r.RoomDescription
	} else if r.Category != nil {
		roomDescription = r.Category.Name
	}
	return "", roomDescription
}

// CategoryIDValue returns the external room category id, if any.
func (r *RawReservation) CategoryIDValue() string {
	if r.Category != nil {
		return string(r.Category.ID)
	}
	return ""
}

// Amounts returns the paid and total amounts. ok is false when the payload
// carries neither total field, in which case the freeform payment_status
// string is the only signal left.
func (r *RawReservation) Amounts() (paid, total float64, ok bool) {
	if r.PaidOut != nil {
		paid = float64(*r.PaidOut)
	}
	switch {
	case r.TotalToPay != nil:
		total = float64(*r.TotalToPay)
	case r.TotalToPayAccommodation != nil:
		total = float64(*r.TotalToPayAccommodation)
	default:
		return paid, 0, r.PaidOut != nil
	}
	return paid, total, true
}

// HasCheckInData reports whether the guest completed online check-in or the
// holder carries full document data.
func (r *RawReservation) HasCheckInData() bool {
	if r.CheckinOnline {
		return true
	}
	return r.Holder != nil && r.Holder.DocumentType != "" && r.Holder.DocumentNumber != ""
}

// PageMeta is the pagination metadata block. The API does not reliably
// repeat it on every page.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
	LastPage    int `json:"last_page"`
}

// PageCount returns the page count from whichever field the API filled.
func (m *PageMeta) PageCount() int {
	if m == nil {
		return 0
	}
	if m.TotalPages > 0 {
		return m.TotalPages
	}
	return m.LastPage
}

// AvailableRoom is one flattened availability entry: one category on one
// date.
type AvailableRoom struct {
	CategoryID     string  `json:"categoryId"`
	RoomName       string  `json:"roomName"`
	RoomType       string  `json:"roomType"` // private | shared
	AvailableRooms int     `json:"availableRooms"`
	PricePerNight  float64 `json:"pricePerNight"`
	Currency       string  `json:"currency"`
	Date           string  `json:"date"`
}

type availabilityDay struct {
	Date       string                 `json:"date"`
	Categories []availabilityCategory `json:"categories"`
}

type availabilityCategory struct {
	CategoryID     FlexString `json:"category_id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	AvailableRooms int        `json:"available_rooms"`
	PricePerNight  FlexFloat  `json:"price_per_night"`
	Currency       string     `json:"currency"`
}

// ParseCalendarDate parses a bare YYYY-MM-DD date (or the date prefix of a
// longer timestamp) as a local calendar date. The PMS returns calendar
// dates with no time or zone component; pushing them through a UTC parser
// shifts the displayed date by one day in zones behind UTC.
func ParseCalendarDate(s string) (time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

// ParseTimestamp parses the datetime formats the PMS is known to emit.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
