// internal/parties/resolver.go

// Package parties resolves the people an event concerns: the dealer and transporter on an
// offer, a vehicle's owner, and the admin and dealer audiences.
package parties

import (
	"context"
	"errors"
	"fmt"

	apperrors "ctp-notifications/internal/common/errors"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"
	"ctp-notifications/pkg/registry"
)

// DocumentReader is the slice of the store the resolver needs.
type DocumentReader interface {
	Get(ctx context.Context, collection, id string) (models.Document, error)
	FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error)
}

// Recipient is one addressable user.
type Recipient struct {
	UserID string
	Role   string
	Name   string
	Email  string
	Token  string
}

func recipientFor(u *models.User) Recipient {
	return Recipient{
		UserID: u.ID,
		Role:   u.Role,
		Name:   u.DisplayName(),
		Email:  u.Email,
		Token:  u.FCMToken,
	}
}

// Parties holds the documents related to one event. Nil fields mean the party
// does not exist or could not be found.
type Parties struct {
	Dealer      *models.User
	Transporter *models.User
	Owner       *models.User
	User        *models.User
	Vehicle     *models.Vehicle

	audiences map[string][]Recipient
}

type Resolver struct {
	docs DocumentReader
	log  logger.Logger
}

func NewResolver(docs DocumentReader, log logger.Logger) *Resolver {
	return &Resolver{docs: docs, log: log}
}

// User loads a user, returning nil without error when it does not exist.
func (r *Resolver) User(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := r.docs.Get(ctx, models.CollectionUsers, id)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("User not found", map[string]interface{}{"userId": id})
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatastoreQueryError(fmt.Sprintf("get user %s", id), err)
	}
	u := models.UserFromDocument(id, doc)
	return &u, nil
}

// Vehicle loads a vehicle, returning nil without error when it does not exist.
func (r *Resolver) Vehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := r.docs.Get(ctx, models.CollectionVehicles, id)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("Vehicle not found", map[string]interface{}{"vehicleId": id})
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatastoreQueryError(fmt.Sprintf("get vehicle %s", id), err)
	}
	v := models.VehicleFromDocument(id, doc)
	return &v, nil
}

// Owner is the user that listed the vehicle.
func (r *Resolver) Owner(ctx context.Context, vehicle *models.Vehicle) (*models.User, error) {
	if vehicle == nil {
		return nil, nil
	}
	if vehicle.OwnerID == "" {
		r.log.Warn("Vehicle has no owner", map[string]interface{}{"vehicleId": vehicle.ID})
		return nil, nil
	}
	return r.User(ctx, vehicle.OwnerID)
}

// ForOffer loads the dealer, vehicle and transporter of an offer. The transporter is
// the offer's transporterId, falling back to the vehicle owner.
func (r *Resolver) ForOffer(ctx context.Context, offer models.Offer) (*Parties, error) {
	p := &Parties{}

	dealer, err := r.User(ctx, offer.DealerID)
	if err != nil {
		return nil, err
	}
	p.Dealer = dealer

	vehicle, err := r.Vehicle(ctx, offer.VehicleID)
	if err != nil {
		return nil, err
	}
	p.Vehicle = vehicle

	if offer.TransporterID != "" {
		p.Transporter, err = r.User(ctx, offer.TransporterID)
	} else if vehicle != nil {
		p.Transporter, err = r.Owner(ctx, vehicle)
	} else {
		r.log.Warn("No transporter for offer", map[string]interface{}{"offerId": offer.ID})
	}
	if err != nil {
		return nil, err
	}
	p.Owner = p.Transporter
	return p, nil
}

// ForVehicle loads the vehicle's owner.
func (r *Resolver) ForVehicle(ctx context.Context, vehicle models.Vehicle) (*Parties, error) {
	owner, err := r.Owner(ctx, &vehicle)
	if err != nil {
		return nil, err
	}
	return &Parties{Vehicle: &vehicle, Owner: owner}, nil
}

// Admins returns every admin and sales representative.
func (r *Resolver) Admins(ctx context.Context) ([]Recipient, error) {
	return r.byRole(ctx, models.AdminRoles...)
}

func (r *Resolver) Dealers(ctx context.Context) ([]Recipient, error) {
	return r.byRole(ctx, models.RoleDealer)
}

func (r *Resolver) byRole(ctx context.Context, roles ...string) ([]Recipient, error) {
	records, err := r.docs.FindByFieldIn(ctx, models.CollectionUsers, models.FieldUserRole, roles)
	if err != nil {
		return nil, apperrors.NewDatastoreQueryError(fmt.Sprintf("find users with role %v", roles), err)
	}
	out := make([]Recipient, 0, len(records))
	for _, rec := range records {
		u := models.UserFromDocument(rec.ID, rec.Data)
		out = append(out, recipientFor(&u))
	}
	return out, nil
}

// Resolve maps an audience onto recipients. Topic audiences have no recipients;
// the caller addresses the topic directly.
func (r *Resolver) Resolve(ctx context.Context, audience string, p *Parties) ([]Recipient, error) {
	if p == nil {
		p = &Parties{}
	}
	switch audience {
	case registry.AudienceDealer:
		return single(p.Dealer), nil
	case registry.AudienceTransporter:
		return single(p.Transporter), nil
	case registry.AudienceOwner:
		return single(p.Owner), nil
	case registry.AudienceUser:
		return single(p.User), nil
	case registry.AudienceAdmins:
		return r.cached(ctx, p, audience, r.Admins)
	case registry.AudienceDealers:
		return r.cached(ctx, p, audience, r.Dealers)
	case registry.AudienceTopic:
		return nil, nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown audience %q", audience))
	}
}

func (r *Resolver) cached(ctx context.Context, p *Parties, audience string, load func(context.Context) ([]Recipient, error)) ([]Recipient, error) {
	if list, ok := p.audiences[audience]; ok {
		return list, nil
	}
	list, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if p.audiences == nil {
		p.audiences = make(map[string][]Recipient)
	}
	p.audiences[audience] = list
	return list, nil
}

func single(u *models.User) []Recipient {
	if u == nil {
		return nil
	}
	return []Recipient{recipientFor(u)}
}
