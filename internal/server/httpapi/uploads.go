package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/server/auth"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/gin-gonic/gin"
)

type uploadRequestPayload struct {
	Name          string          `json:"name"`
	ContentLength int64           `json:"contentLength"`
	ContentMD5    string          `json:"contentMd5"`
	ContentType   string          `json:"contentType"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type uploadSessionPayload struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

type validationStatusPayload struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Messages []string `json:"messageList"`
}

type validationResultPayload struct {
	Status   string   `json:"status"`
	Messages []string `json:"messageList"`
}

type uploadPayload struct {
	ID               string          `json:"uploadId"`
	Name             string          `json:"name"`
	ContentLength    int64           `json:"contentLength"`
	ContentMD5       string          `json:"contentMd5"`
	ContentType      string          `json:"contentType"`
	Status           string          `json:"status"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	RequestedOn      time.Time       `json:"requestedOn"`
	CompletedOn      *time.Time      `json:"completedOn,omitempty"`
	CompletedBy      string          `json:"completedBy,omitempty"`
	OriginalUploadID string          `json:"duplicateUploadId,omitempty"`
}

type uploadListPayload struct {
	Items     []uploadPayload `json:"items"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
}

func (h *httpHandler) handleCreateUpload(c *gin.Context) {
	id := identity(c)

	var request uploadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.uploads.CreateUpload(c.Request.Context(), id.AppID, id.HealthCode, models.UploadRequest{
		Name:          request.Name,
		ContentLength: request.ContentLength,
		ContentMD5:    request.ContentMD5,
		ContentType:   request.ContentType,
		Metadata:      request.Metadata,
	})
	if err != nil {
		h.writeError(c, "create upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, uploadSessionPayload{ID: session.ID, URL: session.URL, Expires: session.Expires})
}

func (h *httpHandler) handleCompleteUpload(c *gin.Context) {
	id := identity(c)
	uploadID := c.Param("id")

	synchronous, err := boolQuery(c, "synchronous")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	redrive, err := boolQuery(c, "redrive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.uploads.CompleteUpload(ctx, id.AppID, ownerFilter(id), uploadID, models.CompletedByApp, redrive); err != nil {
		h.writeError(c, "complete upload failed", err)
		return
	}

	if !synchronous {
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Upload %s complete!", uploadID)})
		return
	}

	st, err := h.uploads.PollValidationStatusUntilComplete(ctx, id.AppID, ownerFilter(id), uploadID)
	if err != nil {
		h.writeError(c, "poll validation status failed", err)
		return
	}
	c.JSON(http.StatusOK, toValidationStatusPayload(st))
}

func (h *httpHandler) handleUploadStatus(c *gin.Context) {
	id := identity(c)

	st, err := h.uploads.GetValidationStatus(c.Request.Context(), id.AppID, ownerFilter(id), c.Param("id"))
	if err != nil {
		h.writeError(c, "get validation status failed", err)
		return
	}
	c.JSON(http.StatusOK, toValidationStatusPayload(st))
}

func (h *httpHandler) handleListUploads(c *gin.Context) {
	id := identity(c)

	start, err := time.Parse(time.RFC3339, c.Query("startTime"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startTime must be an ISO-8601 timestamp"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("endTime"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endTime must be an ISO-8601 timestamp"})
		return
	}

	list, err := h.uploads.ListUploads(c.Request.Context(), id.AppID, id.HealthCode, start, end)
	if err != nil {
		h.writeError(c, "list uploads failed", err)
		return
	}

	response := uploadListPayload{Items: make([]uploadPayload, 0, len(list)), StartTime: start, EndTime: end}
	for _, u := range list {
		response.Items = append(response.Items, uploadPayload{
			ID:               u.ID,
			Name:             u.Name,
			ContentLength:    u.ContentLength,
			ContentMD5:       u.ContentMD5,
			ContentType:      u.ContentType,
			Status:           string(u.Status),
			Metadata:         u.Metadata,
			RequestedOn:      u.RequestedOn,
			CompletedOn:      u.CompletedOn,
			CompletedBy:      string(u.CompletedBy),
			OriginalUploadID: u.OriginalUploadID,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleRecordValidation(c *gin.Context) {
	var request validationResultPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.uploads.RecordValidationResult(c.Request.Context(), c.Param("id"), models.UploadStatus(request.Status), request.Messages)
	if err != nil {
		h.writeError(c, "record validation result failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownerFilter is the health code an upload must belong to for this caller.
// Workers may act on any upload of their app.
func ownerFilter(id *auth.Identity) string {
	if id.Worker {
		return ""
	}
	return id.HealthCode
}

func toValidationStatusPayload(st *models.UploadValidationStatus) validationStatusPayload {
	return validationStatusPayload{ID: st.ID, Status: string(st.Status), Messages: st.Messages}
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	v := c.Query(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return b, nil
}
