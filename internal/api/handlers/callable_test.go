// internal/api/handlers/callable_test.go

package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ctp-notifications/internal/api/handlers"
	"ctp-notifications/internal/api/middleware"
	"ctp-notifications/internal/common/auth"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"
	"ctp-notifications/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

type callableEnv struct {
	docs     *MockDocuments
	push     *MockPushSender
	identity *MockIdentityProvider
	handler  *handlers.CallableHandler
}

func createTestCallableEnv(t *testing.T) *callableEnv {
	gin.SetMode(gin.TestMode)
	env := &callableEnv{
		docs:     new(MockDocuments),
		push:     new(MockPushSender),
		identity: new(MockIdentityProvider),
	}
	env.handler = handlers.NewCallableHandler(env.docs, env.push, env.identity, registry.Default(), logger.NewTestLogger(t))
	return env
}

// createTestRouter mounts one route behind a stub that sets caller as the authenticated user.
func createTestRouter(caller *models.User, method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != nil {
			c.Set(middleware.ContextKeyUserID, caller.ID)
			c.Set(middleware.ContextKeyUser, caller)
		}
		c.Next()
	})
	r.Handle(method, path, h)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

var (
	adminCaller   = &models.User{ID: "admin-1", Role: models.RoleAdmin}
	managerCaller = &models.User{ID: "mgr-1", Role: models.RoleOEM, IsOemManager: true, CompanyID: "acme"}
	dealerCaller  = &models.User{ID: "dealer-1", Role: models.RoleDealer}
)

// ==========================
// sendDirectNotification
// ==========================

func TestSendDirectNotification_Success(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(dealerCaller, http.MethodPost, "/api/sendDirectNotification", env.handler.SendDirectNotification)

	env.docs.On("Get", mock.Anything, models.CollectionUsers, "u1").
		Return(models.Document{"fcmToken": "tok-1", "userRole": "dealer"}, nil)
	env.push.On("Deliver", mock.Anything, mock.MatchedBy(func(n delivery.Notification) bool {
		return n.Channel == delivery.ChannelPush &&
			n.Push.Token == "tok-1" &&
			n.Push.Title == "Hello" &&
			n.Push.Data["offerId"] == "o1" &&
			n.Push.Data["timestamp"] != ""
	})).Return(nil)

	w, resp := doJSON(r, http.MethodPost, "/api/sendDirectNotification", map[string]interface{}{
		"userId": "u1",
		"title":  "Hello",
		"body":   "World",
		"data":   map[string]string{"offerId": "o1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Notification sent successfully", resp["message"])
	env.push.AssertExpectations(t)
}

func TestSendDirectNotification_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]interface{}
		setup      func(env *callableEnv)
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing title",
			body:       map[string]interface{}{"userId": "u1", "body": "b"},
			wantStatus: http.StatusBadRequest,
			wantError:  "userId, title and body are required",
		},
		{
			name:       "empty body field",
			body:       map[string]interface{}{"userId": "u1", "title": "t", "body": ""},
			wantStatus: http.StatusBadRequest,
			wantError:  "userId, title and body are required",
		},
		{
			name:       "missing user",
			body:       map[string]interface{}{"title": "t", "body": "b"},
			wantStatus: http.StatusBadRequest,
			wantError:  "userId, title and body are required",
		},
		{
			name: "user not found",
			body: map[string]interface{}{"userId": "ghost", "title": "t", "body": "b"},
			setup: func(env *callableEnv) {
				env.docs.On("Get", mock.Anything, models.CollectionUsers, "ghost").Return(nil, store.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantError:  "User not found",
		},
		{
			name: "no fcm token",
			body: map[string]interface{}{"userId": "u2", "title": "t", "body": "b"},
			setup: func(env *callableEnv) {
				env.docs.On("Get", mock.Anything, models.CollectionUsers, "u2").Return(models.Document{"email": "a@b.co"}, nil)
			},
			wantStatus: http.StatusPreconditionFailed,
			wantError:  "User has no FCM token registered",
		},
		{
			name: "provider failure",
			body: map[string]interface{}{"userId": "u3", "title": "t", "body": "b"},
			setup: func(env *callableEnv) {
				env.docs.On("Get", mock.Anything, models.CollectionUsers, "u3").Return(models.Document{"fcmToken": "tok"}, nil)
				env.push.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("fcm down"))
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "Failed to send notification",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestCallableEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			r := createTestRouter(dealerCaller, http.MethodPost, "/api/sendDirectNotification", env.handler.SendDirectNotification)

			w, resp := doJSON(r, http.MethodPost, "/api/sendDirectNotification", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, resp["error"])
		})
	}
}

// ==========================
// sendNewVehicleNotification
// ==========================

func TestSendNewVehicleNotification_Success(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/sendNewVehicleNotification", env.handler.SendNewVehicleNotification)

	env.docs.On("Get", mock.Anything, models.CollectionVehicles, "v1").Return(models.Document{
		"brands":    []interface{}{"Scania"},
		"makeModel": "R450",
		"year":      "2021",
	}, nil)

	var sent delivery.Notification
	env.push.On("Deliver", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(delivery.Notification) }).
		Return(nil)

	w, resp := doJSON(r, http.MethodPost, "/api/sendNewVehicleNotification", map[string]string{"vehicleId": "v1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "New vehicle notification sent to all dealers", resp["message"])
	require.NotNil(t, sent.Push)
	assert.Equal(t, "newVehicles", sent.Push.Topic)
	assert.Equal(t, "New Truck Available", sent.Push.Title)
	assert.Equal(t, "A Scania R450 2021 is now available.", sent.Push.Body)
	assert.Equal(t, "v1", sent.Push.Data["vehicleId"])
	assert.Equal(t, "new_vehicle", sent.Push.Data["notificationType"])
	assert.Equal(t, models.DefaultVehicleType, sent.Push.Data["vehicleType"])
	assert.NotEmpty(t, sent.Push.Data["timestamp"])
}

func TestSendNewVehicleNotification_VehicleNotFound(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/sendNewVehicleNotification", env.handler.SendNewVehicleNotification)
	env.docs.On("Get", mock.Anything, models.CollectionVehicles, "gone").Return(nil, store.ErrNotFound)

	w, resp := doJSON(r, http.MethodPost, "/api/sendNewVehicleNotification", map[string]string{"vehicleId": "gone"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Vehicle not found", resp["error"])
	env.push.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSendNewVehicleNotification_MissingVehicleID(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/sendNewVehicleNotification", env.handler.SendNewVehicleNotification)

	w, resp := doJSON(r, http.MethodPost, "/api/sendNewVehicleNotification", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "vehicleId is required", resp["error"])
	env.docs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

// ==========================
// createCompanyEmployee
// ==========================

func employeeBody(companyID string) map[string]string {
	return map[string]string{
		"email":     "Jane@Acme.co.za",
		"firstName": "Jane",
		"lastName":  "Doe",
		"companyId": companyID,
	}
}

func TestCreateCompanyEmployee_Success(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(managerCaller, http.MethodPost, "/api/createCompanyEmployee", env.handler.CreateCompanyEmployee)

	env.identity.On("GetUserByEmail", mock.Anything, "jane@acme.co.za").Return(nil, nil)
	env.identity.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
		return u.Email == "jane@acme.co.za" && u.Enabled && u.Attributes[models.FieldCompanyID][0] == "acme"
	})).Return(&auth.User{ID: "kc-42"}, nil)
	env.docs.On("Create", mock.Anything, models.CollectionUsers, "kc-42", mock.MatchedBy(func(d models.Document) bool {
		return d[models.FieldUserRole] == models.RoleOEM &&
			d[models.FieldCompanyID] == "acme" &&
			d[models.FieldIsOemManager] == false &&
			d["createdBy"] == "mgr-1"
	})).Return(nil)

	w, resp := doJSON(r, http.MethodPost, "/api/createCompanyEmployee", employeeBody(""))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "kc-42", resp["userId"])
	env.identity.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
	env.docs.AssertExpectations(t)
}

func TestCreateCompanyEmployee_RollsBackOnProfileFailure(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/createCompanyEmployee", env.handler.CreateCompanyEmployee)

	env.identity.On("GetUserByEmail", mock.Anything, "jane@acme.co.za").Return(nil, nil)
	env.identity.On("CreateUser", mock.Anything, mock.Anything).Return(&auth.User{ID: "kc-43"}, nil)
	env.docs.On("Create", mock.Anything, models.CollectionUsers, "kc-43", mock.Anything).Return(errors.New("insert failed"))
	env.identity.On("DeleteUser", mock.Anything, "kc-43").Return(nil)

	w, resp := doJSON(r, http.MethodPost, "/api/createCompanyEmployee", employeeBody("acme"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to create user profile", resp["error"])
	env.identity.AssertCalled(t, "DeleteUser", mock.Anything, "kc-43")
}

func TestCreateCompanyEmployee_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		caller     *models.User
		body       map[string]string
		setup      func(env *callableEnv)
		wantStatus int
	}{
		{
			name:       "dealer caller",
			caller:     dealerCaller,
			body:       employeeBody("acme"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "oem without manager flag",
			caller:     &models.User{ID: "oem-1", Role: models.RoleOEM, CompanyID: "acme"},
			body:       employeeBody("acme"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "manager of another company",
			caller:     managerCaller,
			body:       employeeBody("other"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin without company",
			caller:     adminCaller,
			body:       employeeBody(""),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "malformed email",
			caller: adminCaller,
			body: map[string]string{
				"email":     "jane.acme.co.za",
				"firstName": "Jane",
				"lastName":  "Dlamini",
				"companyId": "acme",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "missing last name",
			caller: managerCaller,
			body: map[string]string{
				"email":     "jane@acme.co.za",
				"firstName": "Jane",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "missing email",
			caller: adminCaller,
			body: map[string]string{
				"firstName": "Jane",
				"lastName":  "Dlamini",
				"companyId": "acme",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "email already registered",
			caller: adminCaller,
			body:   employeeBody("acme"),
			setup: func(env *callableEnv) {
				env.identity.On("GetUserByEmail", mock.Anything, "jane@acme.co.za").Return(&auth.User{ID: "kc-1"}, nil)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "keycloak unavailable",
			caller: adminCaller,
			body:   employeeBody("acme"),
			setup: func(env *callableEnv) {
				env.identity.On("GetUserByEmail", mock.Anything, "jane@acme.co.za").Return(nil, errors.New("timeout"))
			},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestCallableEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			r := createTestRouter(tt.caller, http.MethodPost, "/api/createCompanyEmployee", env.handler.CreateCompanyEmployee)

			w, _ := doJSON(r, http.MethodPost, "/api/createCompanyEmployee", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			env.identity.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
		})
	}
}

// ==========================
// elevateAllOemToManagers
// ==========================

func TestElevateAllOemToManagers(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/elevateAllOemToManagers", env.handler.ElevateAllOemToManagers)

	env.docs.On("FindByFieldIn", mock.Anything, models.CollectionUsers, models.FieldUserRole, []string{models.RoleOEM}).
		Return([]store.Record{
			{ID: "o1", Data: models.Document{"userRole": "oem"}},
			{ID: "o2", Data: models.Document{"userRole": "oem", "isOemManager": true}},
			{ID: "o3", Data: models.Document{"userRole": "oem", "isOemManager": false}},
		}, nil)
	env.docs.On("UpdateFields", mock.Anything, models.CollectionUsers, mock.Anything,
		map[string]interface{}{models.FieldIsOemManager: true}).Return(nil)

	w, resp := doJSON(r, http.MethodPost, "/api/elevateAllOemToManagers", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["updated"])
	env.docs.AssertNumberOfCalls(t, "UpdateFields", 2)
	env.docs.AssertNotCalled(t, "UpdateFields", mock.Anything, models.CollectionUsers, "o2", mock.Anything)
}

func TestElevateAllOemToManagers_UpdateFailure(t *testing.T) {
	env := createTestCallableEnv(t)
	r := createTestRouter(adminCaller, http.MethodPost, "/api/elevateAllOemToManagers", env.handler.ElevateAllOemToManagers)

	env.docs.On("FindByFieldIn", mock.Anything, models.CollectionUsers, models.FieldUserRole, mock.Anything).
		Return([]store.Record{{ID: "o1", Data: models.Document{}}}, nil)
	env.docs.On("UpdateFields", mock.Anything, models.CollectionUsers, "o1", mock.Anything).Return(errors.New("deadlock"))

	w, resp := doJSON(r, http.MethodPost, "/api/elevateAllOemToManagers", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, float64(0), resp["updated"])
}
