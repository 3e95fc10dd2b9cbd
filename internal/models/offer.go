// internal/models/offer.go
package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	OfferStatusPending        = "pending"
	OfferStatusAccepted       = "accepted"
	OfferStatusRejected       = "rejected"
	OfferStatusPaymentOptions = "payment options"
	OfferStatusPaymentPending = "payment pending"
	OfferStatusPaid           = "paid"
	OfferStatusCollected      = "collected"
	OfferStatusCompleted      = "completed"
	OfferStatusSold           = "sold"
	OfferStatusExpired        = "expired"
)

// Offer document fields.
const (
	FieldOfferStatus         = "offerStatus"
	FieldStatusLocked        = "statusLocked"
	FieldTransactionComplete = "transactionComplete"
	FieldDealerID            = "dealerId"
	FieldTransporterID       = "transporterId"
	FieldVehicleID           = "vehicleId"
	FieldOfferAmount         = "offerAmount"

	FieldInspectionDate     = "dealerSelectedInspectionDate"
	FieldInspectionTime     = "dealerSelectedInspectionTime"
	FieldInspectionLocation = "dealerSelectedInspectionLocation"
	FieldCollectionDate     = "dealerSelectedCollectionDate"
	FieldCollectionTime     = "dealerSelectedCollectionTime"
	FieldCollectionLocation = "dealerSelectedCollectionLocation"

	FieldTransporterInvoiceURL = "transporterInvoiceUrl"
	FieldExternalInvoiceURL    = "externalInvoiceUrl"
	FieldProofOfPaymentURL     = "proofOfPaymentUrl"
	FieldPaymentStatus         = "paymentStatus"
	FieldPaymentDueDate        = "paymentDueDate"
	FieldCreatedAt             = "createdAt"
	FieldUpdatedAt             = "updatedAt"

	MarkerLastStatusNotification = "lastStatusNotification"
	MarkerPreInspectionReminder  = "lastPreInspectionReminderFor"
	MarkerPreCollectionReminder  = "lastPreCollectionReminderFor"
	MarkerUnpaidReminder         = "lastUnpaidReminderAt"
	MarkerPaymentOverdue         = "lastPaymentOverdueReminderAt"
	MarkerStalledAlertKeys       = "stalledAlertKeys"
)

var terminalOfferStatuses = map[string]bool{
	OfferStatusCollected: true,
	OfferStatusCompleted: true,
	OfferStatusSold:      true,
}

// NormalizeStatus lowercases and trims a status value.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func IsTerminalOfferStatus(status string) bool {
	return terminalOfferStatuses[NormalizeStatus(status)]
}

// IsTerminalOffer reports whether an offer snapshot must not produce further notifications.
// A nil snapshot is not terminal.
func IsTerminalOffer(d Document) bool {
	if d == nil {
		return false
	}
	return d.Bool(FieldStatusLocked) || d.Bool(FieldTransactionComplete) || IsTerminalOfferStatus(d.String(FieldOfferStatus))
}

// Appointment is a dealer-selected inspection or collection slot.
// Date holds the stored value as-is: a plain date string, an ISO instant or a Firestore timestamp.
type Appointment struct {
	Date     interface{} `json:"date"`
	Time     string      `json:"time"`
	Location string      `json:"location"`
}

func (a Appointment) IsSet() bool {
	return !isEmptyValue(a.Date) && strings.TrimSpace(a.Time) != ""
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// day resolves the date part. instant is false for calendar dates like "2026-03-10",
// which carry no zone and must not be shifted.
func (a Appointment) day() (t time.Time, instant bool, ok bool) {
	if s, isString := a.Date.(string); isString {
		s = strings.TrimSpace(s)
		t, ok = ParseTime(s)
		return t, strings.Contains(s, "T"), ok
	}
	t, ok = ParseTime(a.Date)
	return t, true, ok
}

// DateKey renders the date independent of how it was stored.
func (a Appointment) DateKey() string {
	t, instant, ok := a.day()
	switch {
	case !ok:
		if s, isString := a.Date.(string); isString {
			return strings.TrimSpace(s)
		}
		if a.Date == nil {
			return ""
		}
		return fmt.Sprint(a.Date)
	case instant:
		return t.UTC().Format(time.RFC3339)
	default:
		return t.Format("2006-01-02")
	}
}

// DateIn formats the calendar day of the appointment in loc.
func (a Appointment) DateIn(loc *time.Location) string {
	t, instant, ok := a.day()
	if !ok {
		return a.DateKey()
	}
	if instant {
		t = t.In(loc)
	}
	return t.Format("2006-01-02")
}

// Key identifies a booking, so a rebooking to a different slot is a new event.
func (a Appointment) Key() string {
	return a.DateKey() + "|" + strings.TrimSpace(a.Time) + "|" + strings.TrimSpace(a.Location)
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// At resolves the appointment to an instant in loc.
func (a Appointment) At(loc *time.Location) (time.Time, bool) {
	if !a.IsSet() {
		return time.Time{}, false
	}

	day, instant, ok := a.day()
	if !ok {
		return time.Time{}, false
	}
	if instant {
		day = day.In(loc)
	}

	clock := strings.TrimSpace(a.Time)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true
		}
	}
	return time.Time{}, false
}

// Offer is the typed view of an offers document.
type Offer struct {
	ID                  string
	DealerID            string
	TransporterID       string
	VehicleID           string
	OfferAmount         float64
	Status              string
	StatusLocked        bool
	TransactionComplete bool
	Inspection          Appointment
	Collection          Appointment
	TransporterInvoice  string
	ExternalInvoice     string
	ProofOfPayment      string
	PaymentStatus       string
	PaymentDueDate      time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Raw                 Document
}

func OfferFromDocument(id string, d Document) Offer {
	amount, _ := d.Float(FieldOfferAmount)
	due, _ := d.Time(FieldPaymentDueDate)
	created, _ := d.Time(FieldCreatedAt)
	updated, _ := d.Time(FieldUpdatedAt)

	return Offer{
		ID:                  id,
		DealerID:            d.String(FieldDealerID),
		TransporterID:       d.String(FieldTransporterID),
		VehicleID:           d.String(FieldVehicleID),
		OfferAmount:         amount,
		Status:              NormalizeStatus(d.String(FieldOfferStatus)),
		StatusLocked:        d.Bool(FieldStatusLocked),
		TransactionComplete: d.Bool(FieldTransactionComplete),
		Inspection: Appointment{
			Date:     d[FieldInspectionDate],
			Time:     d.String(FieldInspectionTime),
			Location: d.String(FieldInspectionLocation),
		},
		Collection: Appointment{
			Date:     d[FieldCollectionDate],
			Time:     d.String(FieldCollectionTime),
			Location: d.String(FieldCollectionLocation),
		},
		TransporterInvoice: d.String(FieldTransporterInvoiceURL),
		ExternalInvoice:    d.String(FieldExternalInvoiceURL),
		ProofOfPayment:     d.String(FieldProofOfPaymentURL),
		PaymentStatus:      NormalizeStatus(d.String(FieldPaymentStatus)),
		PaymentDueDate:     due,
		CreatedAt:          created,
		UpdatedAt:          updated,
		Raw:                d,
	}
}

func (o Offer) IsTerminal() bool {
	return o.StatusLocked || o.TransactionComplete || IsTerminalOfferStatus(o.Status)
}

// LastActivity is updatedAt, falling back to createdAt.
func (o Offer) LastActivity() time.Time {
	if !o.UpdatedAt.IsZero() {
		return o.UpdatedAt
	}
	return o.CreatedAt
}

// InvoiceURL prefers the transporter's own invoice.
func (o Offer) InvoiceURL() string {
	if o.TransporterInvoice != "" {
		return o.TransporterInvoice
	}
	return o.ExternalInvoice
}
