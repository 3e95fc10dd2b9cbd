// internal/lifecycle/variables.go

package lifecycle

import (
	"strings"
	"time"

	"ctp-notifications/internal/models"
	"ctp-notifications/internal/parties"
)

const notAvailable = "N/A"

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fullName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// transporterLabel is "First Last from Company", as shown in the approval templates.
func transporterLabel(u *models.User) string {
	if u == nil {
		return notAvailable
	}
	label := fullName(u)
	if u.CompanyName != "" {
		label += " from " + u.CompanyName
	}
	return orDefault(strings.TrimSpace(label), notAvailable)
}

// variables builds the placeholder values available to registry copy for ev.
func (n *Notifier) variables(ev Event, p *parties.Parties) map[string]string {
	vars := make(map[string]string)
	if p == nil {
		p = &parties.Parties{}
	}

	if p.Vehicle != nil {
		n.vehicleVars(vars, p.Vehicle, p.Owner)
	}

	switch ev.Collection {
	case models.CollectionOffers:
		offerVars(vars, ev, p, n.cfg.Location)
	case models.CollectionUsers:
		u := p.User
		if u == nil {
			fromDoc := models.UserFromDocument(ev.DocumentID, ev.Doc)
			u = &fromDoc
		}
		userVars(vars, u)
	}

	for k, v := range ev.Vars {
		vars[k] = v
	}
	return vars
}

func (n *Notifier) vehicleVars(vars map[string]string, v *models.Vehicle, owner *models.User) {
	brand := orDefault(v.Brand, notAvailable)
	model := orDefault(v.Model, notAvailable)

	vars["vehicleId"] = v.ID
	vars["vehicleTitle"] = v.Title()
	vars["brand"] = brand
	vars["make"] = brand
	vars["model"] = model
	vars["makeModel"] = v.MakeModel
	vars["variant"] = orDefault(v.Variant, notAvailable)
	vars["year"] = orDefault(v.Year, notAvailable)
	vars["vehicleType"] = v.VehicleType
	vars["imageUrl"] = v.MainImageURL
	vars["vehicleLink"] = strings.TrimRight(n.cfg.PublicBaseURL, "/") + "/vehicle/" + v.ID
	vars["transporter"] = transporterLabel(owner)
	vars["date"] = n.now().In(n.cfg.Location).Format("1/2/2006")
}

func offerVars(vars map[string]string, ev Event, p *parties.Parties, loc *time.Location) {
	o := models.OfferFromDocument(ev.DocumentID, ev.Doc)

	vars["offerId"] = o.ID
	vars["offerAmount"] = ev.Doc.String(models.FieldOfferAmount)
	vars["offerStatus"] = o.Status
	if ev.Type == EventOfferStatus {
		vars["previousStatus"] = ev.Delta.From
	}
	if _, ok := vars["vehicleId"]; !ok {
		vars["vehicleId"] = o.VehicleID
	}
	vars["vehicleTitle"] = orDefault(vars["vehicleTitle"], "the vehicle")

	vars["dealerName"] = "A dealer"
	if p.Dealer != nil {
		vars["dealerName"] = p.Dealer.DisplayName()
	}
	vars["transporterName"] = "there"
	if p.Transporter != nil {
		vars["transporterName"] = orDefault(fullName(p.Transporter), p.Transporter.DisplayName())
	}

	vars["inspectionDate"] = o.Inspection.DateIn(loc)
	vars["inspectionTime"] = o.Inspection.Time
	vars["inspectionLocation"] = o.Inspection.Location
	vars["collectionDate"] = o.Collection.DateIn(loc)
	vars["collectionTime"] = o.Collection.Time
	vars["collectionLocation"] = o.Collection.Location
	vars["invoiceUrl"] = o.InvoiceURL()
	vars["proofOfPaymentUrl"] = o.ProofOfPayment
	if !o.PaymentDueDate.IsZero() {
		vars["paymentDueDate"] = o.PaymentDueDate.In(loc).Format("2006-01-02")
	}
	if last := o.LastActivity(); !last.IsZero() {
		vars["lastActivity"] = last.In(loc).Format("2006-01-02")
	}
}

func userVars(vars map[string]string, u *models.User) {
	vars["userId"] = u.ID
	vars["userRole"] = u.Role
	vars["roleTitle"] = titleCase(u.Role)
	vars["fullName"] = fullName(u)
	vars["company"] = orDefault(u.CompanyName, u.TradingName)
	vars["phone"] = u.Phone
	vars["email"] = u.Email
}
