// internal/models/vehicle.go
package models

import "strings"

const (
	VehicleStatusDraft    = "draft"
	VehicleStatusPending  = "pending"
	VehicleStatusLive     = "live"
	VehicleStatusApproved = "approved"
	VehicleStatusSold     = "sold"

	FieldVehicleStatus = "vehicleStatus"
	FieldStatus        = "status"
	FieldOwnerID       = "userId"

	DefaultVehicleType = "truck"
)

// VehicleStatus reads vehicleStatus, falling back to status.
func VehicleStatus(d Document) string {
	if d == nil {
		return ""
	}
	if s := NormalizeStatus(d.String(FieldVehicleStatus)); s != "" {
		return s
	}
	return NormalizeStatus(d.String(FieldStatus))
}

type Vehicle struct {
	ID                   string
	OwnerID              string
	Status               string
	Brand                string
	Model                string
	MakeModel            string
	Variant              string
	Year                 string
	Mileage              string
	TransmissionType     string
	ExpectedSellingPrice string
	AccidentFree         bool
	VehicleType          string
	MainImageURL         string
	Raw                  Document
}

func VehicleFromDocument(id string, d Document) Vehicle {
	v := Vehicle{
		ID:                   id,
		OwnerID:              d.String(FieldOwnerID),
		Status:               VehicleStatus(d),
		MakeModel:            d.String("makeModel"),
		Variant:              d.String("variant"),
		Year:                 d.String("year"),
		Mileage:              d.String("mileage"),
		TransmissionType:     d.String("transmissionType"),
		ExpectedSellingPrice: d.String("expectedSellingPrice"),
		AccidentFree:         accidentFree(d),
		VehicleType:          d.String("vehicleType"),
		MainImageURL:         d.String("mainImageUrl"),
		Raw:                  d,
	}

	details := d.Map("modelDetails")
	if brands := d.Strings("brands"); len(brands) > 0 {
		v.Brand = brands[0]
	} else if details != nil {
		v.Brand = details.String("manufacturer")
	}
	if details != nil && details.String("model") != "" {
		v.Model = details.String("model")
	} else {
		v.Model = v.MakeModel
	}
	if v.TransmissionType == "" {
		v.TransmissionType = d.String("transmission")
	}
	if v.VehicleType == "" {
		v.VehicleType = DefaultVehicleType
	}
	return v
}

// Title is the display name used in notification copy.
func (v Vehicle) Title() string {
	if v.MakeModel != "" {
		return v.MakeModel
	}
	name := strings.TrimSpace(v.Brand + " " + v.Model)
	if name == "" {
		return "Vehicle"
	}
	return name
}

func accidentFree(d Document) bool {
	switch val := d["accidentFree"].(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "no", "false":
			return false
		}
		return true
	default:
		return false
	}
}
