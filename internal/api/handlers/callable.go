// internal/api/handlers/callable.go

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ctp-notifications/internal/api/middleware"
	"ctp-notifications/internal/common/auth"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"
	"ctp-notifications/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	newVehicleDefinition = "vehicle_live_topic"
	directDefinition     = "direct_notification"
)

// Documents is the datastore surface the callable endpoints use.
type Documents interface {
	Get(ctx context.Context, collection, id string) (models.Document, error)
	FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error)
	UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Create(ctx context.Context, collection, id string, data models.Document) error
}

// PushSender delivers one unit immediately.
type PushSender interface {
	Deliver(ctx context.Context, n delivery.Notification) error
}

// IdentityProvider manages accounts in Keycloak.
type IdentityProvider interface {
	CreateUser(ctx context.Context, user *auth.User) (*auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// CallableHandler serves the authenticated /api endpoints used by the app.
type CallableHandler struct {
	docs     Documents
	push     PushSender
	identity IdentityProvider
	registry *registry.Registry
	log      logger.Logger
	now      func() time.Time
}

func NewCallableHandler(docs Documents, push PushSender, identity IdentityProvider, reg *registry.Registry, log logger.Logger) *CallableHandler {
	return &CallableHandler{
		docs:     docs,
		push:     push,
		identity: identity,
		registry: reg,
		log:      log.WithFields(map[string]interface{}{"component": "api"}),
		now:      time.Now,
	}
}

type directNotificationRequest struct {
	UserID string            `json:"userId" binding:"required"`
	Title  string            `json:"title" binding:"required"`
	Body   string            `json:"body" binding:"required"`
	Data   map[string]string `json:"data"`
}

// SendDirectNotification handles POST /api/sendDirectNotification
func (h *CallableHandler) SendDirectNotification(c *gin.Context) {
	var req directNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, title and body are required"})
		return
	}

	ctx := c.Request.Context()
	doc, err := h.docs.Get(ctx, models.CollectionUsers, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		}
		return
	}
	user := models.UserFromDocument(req.UserID, doc)
	if user.FCMToken == "" {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "User has no FCM token registered"})
		return
	}

	data := make(map[string]string, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	data["timestamp"] = h.timestamp()

	unit := delivery.Notification{
		Key:          "direct:" + uuid.New().String(),
		EventType:    directDefinition,
		DefinitionID: directDefinition,
		Channel:      delivery.ChannelPush,
		RecipientID:  user.ID,
		Push: &delivery.PushMessage{
			Title: req.Title,
			Body:  req.Body,
			Data:  data,
			Token: user.FCMToken,
		},
	}
	if err := h.push.Deliver(ctx, unit); err != nil {
		_ = c.Error(err)
		h.log.Error("Direct notification failed", map[string]interface{}{"userId": user.ID, "error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send notification"})
		return
	}

	h.log.Info("Direct notification sent", map[string]interface{}{
		"userId":   user.ID,
		"callerId": c.GetString(middleware.ContextKeyUserID),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification sent successfully"})
}

type newVehicleRequest struct {
	VehicleID string `json:"vehicleId" binding:"required"`
}

// SendNewVehicleNotification handles POST /api/sendNewVehicleNotification
func (h *CallableHandler) SendNewVehicleNotification(c *gin.Context) {
	var req newVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicleId is required"})
		return
	}

	ctx := c.Request.Context()
	doc, err := h.docs.Get(ctx, models.CollectionVehicles, req.VehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load vehicle"})
		}
		return
	}

	def, ok := h.registry.Lookup(newVehicleDefinition)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "New vehicle notification is not configured"})
		return
	}

	v := models.VehicleFromDocument(req.VehicleID, doc)
	rendered := registry.Render(def, map[string]string{
		"vehicleId":   v.ID,
		"brand":       v.Brand,
		"model":       v.Model,
		"year":        v.Year,
		"vehicleType": v.VehicleType,
	})
	rendered.Data["timestamp"] = h.timestamp()

	unit := delivery.Notification{
		Key:          "manual:" + def.ID + ":" + v.ID + ":" + uuid.New().String(),
		EventType:    def.NotificationType,
		DefinitionID: def.ID,
		Channel:      delivery.ChannelPush,
		Push: &delivery.PushMessage{
			Title: rendered.Title,
			Body:  rendered.Body,
			Data:  rendered.Data,
			Topic: rendered.Topic,
		},
	}
	if err := h.push.Deliver(ctx, unit); err != nil {
		_ = c.Error(err)
		h.log.Error("New vehicle notification failed", map[string]interface{}{"vehicleId": v.ID, "error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "New vehicle notification sent to all dealers"})
}

type employeeRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	// Optional for OEM managers, who default to their own company.
	CompanyID string `json:"companyId"`
}

// CreateCompanyEmployee handles POST /api/createCompanyEmployee. OEM managers may only add
// employees to their own company.
func (h *CallableHandler) CreateCompanyEmployee(c *gin.Context) {
	caller := middleware.CurrentUser(c)
	isManager := caller != nil && caller.Role == models.RoleOEM && caller.IsOemManager
	if caller == nil || (!caller.IsAdmin() && !isManager) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only admins and OEM managers can create employees"})
		return
	}

	var req employeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, firstName and lastName are required and email must be a valid address"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !caller.IsAdmin() {
		if req.CompanyID == "" {
			req.CompanyID = caller.CompanyID
		}
		if req.CompanyID != caller.CompanyID {
			c.JSON(http.StatusForbidden, gin.H{"error": "OEM managers can only add employees to their own company"})
			return
		}
	}
	if req.CompanyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "companyId is required"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.identity.GetUserByEmail(ctx, req.Email)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to check existing accounts"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
		return
	}

	created, err := h.identity.CreateUser(ctx, &auth.User{
		Email:      req.Email,
		Username:   req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Enabled:    true,
		Attributes: map[string][]string{models.FieldCompanyID: {req.CompanyID}},
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create account"})
		return
	}

	profile := models.Document{
		models.FieldEmail:        req.Email,
		"firstName":              req.FirstName,
		"lastName":               req.LastName,
		models.FieldUserRole:     models.RoleOEM,
		models.FieldCompanyID:    req.CompanyID,
		models.FieldIsOemManager: false,
		"createdBy":              caller.ID,
		"createdAt":              h.timestamp(),
	}
	if err := h.docs.Create(ctx, models.CollectionUsers, created.ID, profile); err != nil {
		_ = c.Error(err)
		if delErr := h.identity.DeleteUser(ctx, created.ID); delErr != nil {
			h.log.Error("Failed to roll back account", map[string]interface{}{"userId": created.ID, "error": delErr.Error()})
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user profile"})
		return
	}

	h.log.Info("Company employee created", map[string]interface{}{
		"userId":    created.ID,
		"companyId": req.CompanyID,
		"callerId":  caller.ID,
	})
	c.JSON(http.StatusCreated, gin.H{"success": true, "userId": created.ID})
}

// ElevateAllOemToManagers handles POST /api/elevateAllOemToManagers
func (h *CallableHandler) ElevateAllOemToManagers(c *gin.Context) {
	ctx := c.Request.Context()
	records, err := h.docs.FindByFieldIn(ctx, models.CollectionUsers, models.FieldUserRole, []string{models.RoleOEM})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list OEM users"})
		return
	}

	updated := 0
	for _, rec := range records {
		if rec.Data.Bool(models.FieldIsOemManager) {
			continue
		}
		if err := h.docs.UpdateFields(ctx, models.CollectionUsers, rec.ID, map[string]interface{}{models.FieldIsOemManager: true}); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to elevate OEM users", "updated": updated})
			return
		}
		updated++
	}

	h.log.Info("OEM users elevated", map[string]interface{}{"updated": updated, "total": len(records)})
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func (h *CallableHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
