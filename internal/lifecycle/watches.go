// internal/lifecycle/watches.go

package lifecycle

import (
	"fmt"
	"time"

	"ctp-notifications/internal/models"
)

// Event types, also the event segment of idempotency keys.
const (
	EventOfferStatus           = "offer_status_change"
	EventInspectionBooked      = "inspection_booked"
	EventCollectionBooked      = "collection_booked"
	EventInvoiceUploaded       = "invoice_uploaded"
	EventProofOfPayment        = "proof_of_payment_uploaded"
	EventVehicleStatus         = "vehicle_status_change"
	EventUserCreated           = "user_created"
	EventRegistrationCompleted = "registration_completed"
	EventDocumentsCompleted    = "documents_completed"
)

// Delta is the change a watch detected on one field.
type Delta struct {
	Field string
	From  string
	To    string
}

// Watch describes one kind of qualifying write. Detect reports whether the change
// qualifies; Identity names the logical event so replays collapse onto one key.
type Watch struct {
	Name          string
	Collection    string
	Fields        []string
	TerminalAware bool
	Marker        string
	Detect        func(c models.Change) (Delta, bool)
	Identity      func(c models.Change) string
	Effects       func(d Delta) []string
}

func staticEffects(ids ...string) func(Delta) []string {
	return func(Delta) []string { return ids }
}

// statusIdentity is "{from}->{to}@{updatedAt}", falling back to the event id when the
// document carries no update time.
func statusIdentity(read func(models.Document) string) func(models.Change) string {
	return func(c models.Change) string {
		from, to := "", ""
		if c.Before != nil {
			from = read(c.Before)
		}
		if c.After != nil {
			to = read(c.After)
		}
		at := c.EventID
		if c.After != nil {
			if t, ok := c.After.Time(models.FieldUpdatedAt); ok {
				at = t.UTC().Format(time.RFC3339Nano)
			}
		}
		return fmt.Sprintf("%s->%s@%s", from, to, at)
	}
}

func statusWatch(name, collection string, fields []string, table StatusTable, terminalAware bool, marker string) Watch {
	return Watch{
		Name:          name,
		Collection:    collection,
		Fields:        fields,
		TerminalAware: terminalAware,
		Marker:        marker,
		Detect: func(c models.Change) (Delta, bool) {
			from := ""
			if c.Before != nil {
				from = table.Read(c.Before)
			}
			to := table.Read(c.After)
			if from == to || len(table.Effects(from, to)) == 0 {
				return Delta{}, false
			}
			return Delta{Field: table.Field, From: from, To: to}, true
		},
		Identity: statusIdentity(table.Read),
		Effects:  func(d Delta) []string { return table.Effects(d.From, d.To) },
	}
}

func appointmentOf(d models.Document, date, clock, location string) models.Appointment {
	if d == nil {
		return models.Appointment{}
	}
	return models.Appointment{Date: d[date], Time: d.String(clock), Location: d.String(location)}
}

func bookingWatch(name, date, clock, location string, effects ...string) Watch {
	read := func(d models.Document) models.Appointment { return appointmentOf(d, date, clock, location) }
	return Watch{
		Name:          name,
		Collection:    models.CollectionOffers,
		Fields:        []string{date, clock, location},
		TerminalAware: true,
		Detect: func(c models.Change) (Delta, bool) {
			before, after := read(c.Before), read(c.After)
			if !after.IsSet() || before.Key() == after.Key() {
				return Delta{}, false
			}
			from := ""
			if before.IsSet() {
				from = before.Key()
			}
			return Delta{Field: date, From: from, To: after.Key()}, true
		},
		Identity: func(c models.Change) string { return read(c.After).Key() },
		Effects:  staticEffects(effects...),
	}
}

// urlWatch fires when read yields a new non-empty value.
func urlWatch(name string, fields []string, read func(models.Document) string, effects ...string) Watch {
	value := func(d models.Document) string {
		if d == nil {
			return ""
		}
		return read(d)
	}
	return Watch{
		Name:          name,
		Collection:    models.CollectionOffers,
		Fields:        fields,
		TerminalAware: true,
		Detect: func(c models.Change) (Delta, bool) {
			from, to := value(c.Before), value(c.After)
			if to == "" || from == to {
				return Delta{}, false
			}
			return Delta{Field: fields[0], From: from, To: to}, true
		},
		Identity: func(c models.Change) string { return value(c.After) },
		Effects:  staticEffects(effects...),
	}
}

var offerWatches = []Watch{
	statusWatch(EventOfferStatus, models.CollectionOffers, []string{models.FieldOfferStatus},
		OfferStatusTable, true, models.MarkerLastStatusNotification),
	bookingWatch(EventInspectionBooked,
		models.FieldInspectionDate, models.FieldInspectionTime, models.FieldInspectionLocation,
		"inspection_booked_transporter", "inspection_booked_admin"),
	bookingWatch(EventCollectionBooked,
		models.FieldCollectionDate, models.FieldCollectionTime, models.FieldCollectionLocation,
		"collection_booked_transporter", "collection_booked_admin"),
	urlWatch(EventInvoiceUploaded,
		[]string{models.FieldTransporterInvoiceURL, models.FieldExternalInvoiceURL},
		func(d models.Document) string { return models.OfferFromDocument("", d).InvoiceURL() },
		"invoice_uploaded_dealer"),
	urlWatch(EventProofOfPayment,
		[]string{models.FieldProofOfPaymentURL},
		func(d models.Document) string { return d.String(models.FieldProofOfPaymentURL) },
		"proof_of_payment_admin"),
}

var vehicleWatches = []Watch{
	statusWatch(EventVehicleStatus, models.CollectionVehicles,
		[]string{models.FieldVehicleStatus, models.FieldStatus}, VehicleStatusTable, false, ""),
}

var registrationWatchFields = append([]string{models.FieldPhone}, models.RegistrationFields...)

var userWatches = []Watch{
	{
		Name:       EventUserCreated,
		Collection: models.CollectionUsers,
		Detect: func(c models.Change) (Delta, bool) {
			return Delta{Field: models.FieldUserRole, To: c.After.String(models.FieldUserRole)}, c.IsCreate()
		},
		Identity: func(models.Change) string { return "created" },
		Effects:  staticEffects("user_registered_admin"),
	},
	{
		Name:       EventRegistrationCompleted,
		Collection: models.CollectionUsers,
		Fields:     registrationWatchFields,
		Detect: func(c models.Change) (Delta, bool) {
			if c.Before == nil {
				return Delta{}, false
			}
			role := models.NormalizeStatus(c.After.String(models.FieldUserRole))
			if role != models.RoleDealer && role != models.RoleTransporter {
				return Delta{}, false
			}
			if models.HasPhone(c.Before) || !models.HasPhone(c.After) || !models.HasAll(c.After, models.RegistrationFields) {
				return Delta{}, false
			}
			return Delta{Field: models.FieldPhoneNumber, To: phoneOf(c.After)}, true
		},
		Identity: func(c models.Change) string { return phoneOf(c.After) },
		Effects:  staticEffects("registration_completed_admin"),
	},
	{
		Name:       EventDocumentsCompleted,
		Collection: models.CollectionUsers,
		Fields:     models.CompanyDocumentFields,
		Detect: func(c models.Change) (Delta, bool) {
			if models.HasAll(c.Before, models.CompanyDocumentFields) || !models.HasAll(c.After, models.CompanyDocumentFields) {
				return Delta{}, false
			}
			return Delta{Field: models.CompanyDocumentFields[0], To: "complete"}, true
		},
		Identity: func(models.Change) string { return "documents" },
		Effects:  staticEffects("documents_completed_admin"),
	},
}

func phoneOf(d models.Document) string {
	return models.UserFromDocument("", d).Phone
}

// Watches returns the watches evaluated for writes to collection.
func Watches(collection string) []Watch {
	switch collection {
	case models.CollectionOffers:
		return offerWatches
	case models.CollectionVehicles:
		return vehicleWatches
	case models.CollectionUsers:
		return userWatches
	default:
		return nil
	}
}
