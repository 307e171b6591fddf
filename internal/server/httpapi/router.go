// Package httpapi exposes the upload service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	errMissingUploadService = errors.New("upload service dependency required")
	errMissingSecretKey     = errors.New("secret key dependency required")
)

// UploadAPI is the part of services.UploadService served over HTTP.
type UploadAPI interface {
	CreateUpload(ctx context.Context, appID, healthCode string, req models.UploadRequest) (*models.UploadSession, error)
	CompleteUpload(ctx context.Context, appID, healthCode, uploadID string, completedBy models.UploadCompletedBy, redrive bool) error
	GetValidationStatus(ctx context.Context, appID, healthCode, uploadID string) (*models.UploadValidationStatus, error)
	PollValidationStatusUntilComplete(ctx context.Context, appID, healthCode, uploadID string) (*models.UploadValidationStatus, error)
	RecordValidationResult(ctx context.Context, uploadID string, status models.UploadStatus, messages []string) error
	ListUploads(ctx context.Context, appID, healthCode string, start, end time.Time) ([]*models.Upload, error)
}

type Dependencies struct {
	Uploads   UploadAPI
	SecretKey []byte
	Logger    logging.Logger
	Metrics   *metrics.Metrics
	// Gatherer backs GET /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Uploads == nil {
		return nil, errMissingUploadService
	}
	if len(deps.SecretKey) == 0 {
		return nil, errMissingSecretKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(observeRequests(deps.Metrics))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		uploads:   deps.Uploads,
		secretKey: deps.SecretKey,
		logger:    logger.With("module", "http_server"),
	}

	router.GET("/ping", handler.handlePing)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	participant := router.Group("/v3")
	participant.Use(handler.authorizeRequest, handler.requireParticipant)
	participant.POST("/uploads", handler.handleCreateUpload)
	participant.GET("/uploads", handler.handleListUploads)
	participant.POST("/uploads/:id/complete", handler.handleCompleteUpload)
	participant.GET("/uploads/:id/status", handler.handleUploadStatus)

	worker := router.Group("/internal")
	worker.Use(handler.authorizeRequest, handler.requireWorker)
	worker.POST("/uploads/:id/validation", handler.handleRecordValidation)

	return router, nil
}

type httpHandler struct {
	uploads   UploadAPI
	secretKey []byte
	logger    logging.Logger
}

func (h *httpHandler) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func observeRequests(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
