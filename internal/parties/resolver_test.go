// internal/parties/resolver_test.go

package parties

import (
	"context"
	"errors"
	"regexp"
	"testing"

	apperrors "ctp-notifications/internal/common/errors"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"
	"ctp-notifications/pkg/registry"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockDocumentReader struct {
	GetFunc           func(ctx context.Context, collection, id string) (models.Document, error)
	FindByFieldInFunc func(ctx context.Context, collection, field string, values []string) ([]store.Record, error)
	findCalls         int
}

func (m *MockDocumentReader) Get(ctx context.Context, collection, id string) (models.Document, error) {
	return m.GetFunc(ctx, collection, id)
}

func (m *MockDocumentReader) FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error) {
	m.findCalls++
	return m.FindByFieldInFunc(ctx, collection, field, values)
}

func createTestReader(docs map[string]models.Document) *MockDocumentReader {
	return &MockDocumentReader{
		GetFunc: func(ctx context.Context, collection, id string) (models.Document, error) {
			if d, ok := docs[collection+"/"+id]; ok {
				return d, nil
			}
			return nil, store.ErrNotFound
		},
		FindByFieldInFunc: func(ctx context.Context, collection, field string, values []string) ([]store.Record, error) {
			var out []store.Record
			for _, v := range values {
				for key, d := range docs {
					if d.String(field) == v {
						out = append(out, store.Record{ID: key[len(collection)+1:], Data: d})
					}
				}
			}
			return out, nil
		},
	}
}

// ==========================
// ForOffer
// ==========================

func TestForOffer_ResolvesTransporterThroughVehicle(t *testing.T) {
	reader := createTestReader(map[string]models.Document{
		"users/d1":    {"userRole": "dealer", "email": "d@x.co", "fcmToken": "TD"},
		"vehicles/v1": {"userId": "t1", "makeModel": "Volvo FH"},
		"users/t1":    {"userRole": "transporter", "email": "t@x.co", "fcmToken": "T1"},
	})
	r := NewResolver(reader, logger.NewTestLogger(t))

	p, err := r.ForOffer(context.Background(), models.Offer{ID: "o1", DealerID: "d1", VehicleID: "v1"})
	require.NoError(t, err)

	require.NotNil(t, p.Transporter)
	assert.Equal(t, "T1", p.Transporter.FCMToken)
	assert.Equal(t, "t@x.co", p.Transporter.Email)
	assert.Equal(t, "Volvo FH", p.Vehicle.Title())
	assert.Equal(t, "TD", p.Dealer.FCMToken)
}

func TestForOffer_ExplicitTransporterWins(t *testing.T) {
	reader := createTestReader(map[string]models.Document{
		"vehicles/v1": {"userId": "owner"},
		"users/owner": {"fcmToken": "OWNER"},
		"users/t2":    {"fcmToken": "T2"},
	})
	r := NewResolver(reader, logger.NewTestLogger(t))

	p, err := r.ForOffer(context.Background(), models.Offer{ID: "o1", VehicleID: "v1", TransporterID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "T2", p.Transporter.FCMToken)
}

func TestForOffer_MissingVehicleYieldsNoTransporter(t *testing.T) {
	reader := createTestReader(map[string]models.Document{
		"users/d1": {"userRole": "dealer"},
	})
	r := NewResolver(reader, logger.NewTestLogger(t))

	p, err := r.ForOffer(context.Background(), models.Offer{ID: "o1", DealerID: "d1", VehicleID: "gone"})
	require.NoError(t, err)

	assert.Nil(t, p.Vehicle)
	assert.Nil(t, p.Transporter)
	recipients, err := r.Resolve(context.Background(), registry.AudienceTransporter, p)
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestForOffer_DatastoreFailureIsRetryable(t *testing.T) {
	reader := &MockDocumentReader{
		GetFunc: func(ctx context.Context, collection, id string) (models.Document, error) {
			return nil, errors.New("connection refused")
		},
	}
	r := NewResolver(reader, logger.NewTestLogger(t))

	_, err := r.ForOffer(context.Background(), models.Offer{DealerID: "d1"})
	require.Error(t, err)

	stdErr := apperrors.AsStandardError(err)
	assert.Equal(t, apperrors.ErrCodeDatastoreQueryFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

// ==========================
// Audiences
// ==========================

func TestResolve_Audiences(t *testing.T) {
	reader := createTestReader(map[string]models.Document{
		"users/a1": {"userRole": "admin", "fcmToken": "A1"},
		"users/a2": {"userRole": "sales representative", "fcmToken": "A2"},
		"users/d1": {"userRole": "dealer", "fcmToken": "D1"},
		"users/d2": {"userRole": "dealer"},
	})
	r := NewResolver(reader, logger.NewTestLogger(t))
	p := &Parties{Dealer: &models.User{ID: "d1", FCMToken: "D1"}}

	tests := []struct {
		audience string
		want     int
	}{
		{registry.AudienceAdmins, 2},
		{registry.AudienceDealers, 2},
		{registry.AudienceDealer, 1},
		{registry.AudienceOwner, 0},
		{registry.AudienceTopic, 0},
	}
	for _, tt := range tests {
		t.Run(tt.audience, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.audience, p)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestResolve_CachesAudiencePerParties(t *testing.T) {
	reader := createTestReader(map[string]models.Document{
		"users/a1": {"userRole": "admin"},
	})
	r := NewResolver(reader, logger.NewTestLogger(t))
	p := &Parties{}

	_, err := r.Resolve(context.Background(), registry.AudienceAdmins, p)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), registry.AudienceAdmins, p)
	require.NoError(t, err)

	assert.Equal(t, 1, reader.findCalls)
}

func TestResolve_UnknownAudience(t *testing.T) {
	r := NewResolver(createTestReader(nil), logger.NewTestLogger(t))

	_, err := r.Resolve(context.Background(), "everyone", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.AsStandardError(err).Code)
}

// ==========================
// Against the Postgres store
// ==========================

func TestAdmins_WithStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, data FROM users WHERE lower(trim(data->>$1)) = ANY($2)`)).
		WithArgs("userRole", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("a1", []byte(`{"userRole":"admin","fcmToken":"A1","email":"a1@ctp.co.za"}`)).
			AddRow("a2", []byte(`{"userRole":"Sales Representative","fcmToken":"A2"}`)))

	r := NewResolver(store.New(db), logger.NewTestLogger(t))
	admins, err := r.Admins(context.Background())
	require.NoError(t, err)

	require.Len(t, admins, 2)
	assert.Equal(t, "A1", admins[0].Token)
	assert.Equal(t, "a1@ctp.co.za", admins[0].Email)
	assert.Equal(t, models.RoleSalesRepresentative, admins[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
