// internal/models/user.go
package models

import "strings"

const (
	RoleAdmin               = "admin"
	RoleSalesRepresentative = "sales representative"
	RoleDealer              = "dealer"
	RoleTransporter         = "transporter"
	RoleOEM                 = "oem"

	FieldUserRole     = "userRole"
	FieldEmail        = "email"
	FieldFCMToken     = "fcmToken"
	FieldPhoneNumber  = "phoneNumber"
	FieldPhone        = "phone"
	FieldCompanyID    = "companyId"
	FieldIsOemManager = "isOemManager"
)

// AdminRoles receive the platform-wide admin notifications.
var AdminRoles = []string{RoleAdmin, RoleSalesRepresentative}

// RegistrationFields must all be present for a registration to count as complete.
var RegistrationFields = []string{
	"companyName", "firstName", "lastName", "addressLine1",
	"city", "state", "postalCode", "country", "phoneNumber",
}

// CompanyDocumentFields are the uploads that complete a company profile.
var CompanyDocumentFields = []string{
	"cipcCertificateUrl", "brncUrl", "bankConfirmationUrl", "proxyUrl", "taxCertificateUrl",
}

type User struct {
	ID           string
	Role         string
	Email        string
	FCMToken     string
	FirstName    string
	LastName     string
	CompanyName  string
	TradingName  string
	Phone        string
	CompanyID    string
	IsOemManager bool
	Raw          Document
}

func UserFromDocument(id string, d Document) User {
	phone := d.String(FieldPhoneNumber)
	if phone == "" {
		phone = d.String(FieldPhone)
	}
	return User{
		ID:           id,
		Role:         NormalizeStatus(d.String(FieldUserRole)),
		Email:        strings.TrimSpace(d.String(FieldEmail)),
		FCMToken:     strings.TrimSpace(d.String(FieldFCMToken)),
		FirstName:    d.String("firstName"),
		LastName:     d.String("lastName"),
		CompanyName:  d.String("companyName"),
		TradingName:  d.String("tradingName"),
		Phone:        phone,
		CompanyID:    d.String(FieldCompanyID),
		IsOemManager: d.Bool(FieldIsOemManager),
		Raw:          d,
	}
}

func (u User) IsAdmin() bool {
	for _, r := range AdminRoles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// DisplayName prefers the company name, then the person's name.
func (u User) DisplayName() string {
	for _, name := range []string{u.CompanyName, u.TradingName, strings.TrimSpace(u.FirstName + " " + u.LastName)} {
		if name != "" {
			return name
		}
	}
	return "Unknown"
}

// HasPhone checks phoneNumber and the legacy phone field.
func HasPhone(d Document) bool {
	return d.Has(FieldPhoneNumber) || d.Has(FieldPhone)
}

// HasAll reports whether every field is present and non-empty.
func HasAll(d Document, fields []string) bool {
	for _, f := range fields {
		if f == FieldPhoneNumber {
			if !HasPhone(d) {
				return false
			}
			continue
		}
		if !d.Has(f) {
			return false
		}
	}
	return true
}
