// internal/lifecycle/transitions.go

package lifecycle

import "ctp-notifications/internal/models"

// Wildcards usable in a transition row.
const (
	Any      = "*" // any state, including the empty creation state
	AnyState = "+" // any non-empty state
	Initial  = ""  // the state before a document exists
)

type Transition struct {
	From    string
	To      string
	Effects []string
}

// StatusTable maps (from, to) pairs of one status field onto registry effect ids.
type StatusTable struct {
	Field string
	Read  func(models.Document) string
	Rows  []Transition
}

func matches(pattern, state string) bool {
	switch pattern {
	case Any:
		return true
	case AnyState:
		return state != ""
	default:
		return pattern == state
	}
}

// Effects returns the effects of every matching row in table order, without duplicates.
// No effects are produced when the state did not change.
func (t StatusTable) Effects(from, to string) []string {
	if from == to {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, row := range t.Rows {
		if !matches(row.From, from) || !matches(row.To, to) {
			continue
		}
		for _, e := range row.Effects {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

var OfferStatusTable = StatusTable{
	Field: models.FieldOfferStatus,
	Read:  func(d models.Document) string { return models.NormalizeStatus(d.String(models.FieldOfferStatus)) },
	Rows: []Transition{
		{Initial, Any, []string{"offer_created_transporter", "offer_created_admin"}},
		{AnyState, Any, []string{"offer_status_dealer", "offer_status_transporter"}},
		{Any, models.OfferStatusAccepted, []string{"offer_accepted_dealer"}},
		{Any, models.OfferStatusRejected, []string{"offer_rejected_dealer"}},
		{Any, models.OfferStatusPaymentOptions, []string{"offer_payment_options_dealer"}},
		{Any, models.OfferStatusPaymentPending, []string{"offer_payment_pending_dealer"}},
		{Any, models.OfferStatusPaid, []string{"offer_paid_admin"}},
		{Any, models.OfferStatusExpired, []string{"offer_expired_dealer"}},
	},
}

var VehicleStatusTable = StatusTable{
	Field: models.FieldVehicleStatus,
	Read:  models.VehicleStatus,
	Rows: []Transition{
		{Any, models.VehicleStatusPending, []string{"vehicle_pending_admin"}},
		{Any, models.VehicleStatusLive, []string{"vehicle_live_topic", "vehicle_approved_owner", "vehicle_listed_dealers"}},
		{Any, models.VehicleStatusApproved, []string{"vehicle_approved_owner", "vehicle_listed_dealers"}},
	},
}
