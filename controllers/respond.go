package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/storage"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {"error": message, "field": field} with the
// status its kind maps to. Internal details never reach the client.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	body := gin.H{"error": "Something went wrong"}

	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		body["error"] = e.Message
		if e.Field != "" {
			body["field"] = e.Field
		}
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, apperr.Validation("", "invalid request body"))
		return false
	}
	return true
}

// formImage reads an uploaded file. A missing file yields a zero Image so the
// service reports the field as required.
func formImage(c *gin.Context, field string) (storage.Image, io.Closer, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return storage.Image{}, io.NopCloser(nil), nil
	}
	if err != nil {
		return storage.Image{}, nil, apperr.Validation(field, "could not read "+field)
	}

	f, err := fh.Open()
	if err != nil {
		return storage.Image{}, nil, apperr.Internal("open upload", err)
	}
	return storage.Image{
		Reader:      f,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
	}, f, nil
}

// detailsFromForm reads issue fields from a multipart form.
func detailsFromForm(c *gin.Context) (models.IssueDetails, error) {
	lat, err := formFloat(c, "lat", "location.lat")
	if err != nil {
		return models.IssueDetails{}, err
	}
	lng, err := formFloat(c, "lng", "location.lng")
	if err != nil {
		return models.IssueDetails{}, err
	}
	return models.IssueDetails{
		Title:       strings.TrimSpace(c.PostForm("title")),
		IssueType:   models.IssueType(strings.TrimSpace(c.PostForm("issueType"))),
		Description: strings.TrimSpace(c.PostForm("description")),
		Location:    models.Location{Lat: lat, Lng: lng},
		Zone:        strings.TrimSpace(c.PostForm("zone")),
	}, nil
}

func formFloat(c *gin.Context, key, field string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0, apperr.Validation(field, field+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation(field, field+" must be a number")
	}
	return v, nil
}
