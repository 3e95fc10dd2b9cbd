// internal/api/handlers/preview.go

package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

const previewCacheControl = "public, max-age=300"

var previewTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <meta property="og:title" content="{{.Title}}" />
  <meta property="og:description" content="{{.Description}}" />
  <meta property="og:image" content="{{.Image}}" />
  <meta property="og:url" content="{{.URL}}" />
  <meta name="twitter:card" content="summary_large_image" />
  <script defer src="/main.dart.js"></script>
</head>
<body></body>
</html>
`))

// DocumentGetter reads a single document.
type DocumentGetter interface {
	Get(ctx context.Context, collection, id string) (models.Document, error)
}

type previewData struct {
	Title       string
	Description string
	Image       string
	URL         string
}

// PreviewHandler renders link previews for shared vehicle URLs.
type PreviewHandler struct {
	docs    DocumentGetter
	baseURL string
	log     logger.Logger
}

func NewPreviewHandler(docs DocumentGetter, publicBaseURL string, log logger.Logger) *PreviewHandler {
	return &PreviewHandler{docs: docs, baseURL: strings.TrimRight(publicBaseURL, "/"), log: log}
}

// VehiclePreview handles GET /vehicle/:id
func (h *PreviewHandler) VehiclePreview(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.docs.Get(c.Request.Context(), models.CollectionVehicles, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.String(http.StatusNotFound, "Vehicle not found")
			return
		}
		_ = c.Error(err)
		h.log.Error("Vehicle preview failed", map[string]interface{}{"vehicleId": id, "error": err.Error()})
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}

	c.Header("Cache-Control", previewCacheControl)
	c.Render(http.StatusOK, render.HTML{
		Template: previewTemplate,
		Name:     "preview",
		Data:     buildPreview(models.VehicleFromDocument(id, doc), h.baseURL),
	})
}

func buildPreview(v models.Vehicle, baseURL string) previewData {
	accidents := "Yes"
	if v.AccidentFree {
		accidents = "None"
	}
	return previewData{
		Title:       v.MakeModel + " • R" + v.ExpectedSellingPrice,
		Description: v.Year + " • " + v.Mileage + " km • " + v.TransmissionType + " • Accidents: " + accidents,
		Image:       v.MainImageURL,
		URL:         baseURL + "/vehicle/" + v.ID,
	}
}
