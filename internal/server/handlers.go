package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quadrel/pecbridge/internal/claim"
	"github.com/quadrel/pecbridge/internal/config"
	"github.com/quadrel/pecbridge/internal/contract/domain"
	"github.com/quadrel/pecbridge/internal/ingestion"
	memberships "github.com/quadrel/pecbridge/internal/membership/domain"
	"go.uber.org/zap"
)

// Dispatcher pushes claim queue items; the redis queue implements it.
type Dispatcher interface {
	Enqueue(ctx context.Context, items ...claim.QueueItem) error
}

type Server struct {
	ingestion *ingestion.Service
	claims    *claim.Service
	queue     Dispatcher
	cfg       config.Config
	log       *zap.Logger
}

func NewServer(ing *ingestion.Service, claims *claim.Service, queue Dispatcher, cfg config.Config, log *zap.Logger) *Server {
	return &Server{
		ingestion: ing,
		claims:    claims,
		queue:     queue,
		cfg:       cfg,
		log:       log.Named("server"),
	}
}

// HandleContractEvents accepts one change-event document or an array of
// them, normalizes to a batch and runs the ingestion pipeline. A failed
// document rejects the invocation even when its siblings succeeded, so
// the caller's redelivery policy sees the failure.
func (s *Server) HandleContractEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	docs, err := normalizeDocuments(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ingestion.ProcessBatch(c.Request.Context(), docs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"kind":  string(domain.KindOf(err)),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"documents": len(docs)})
}

// HandleStartProcess queries the dispatchable memberships and pushes one
// claim per match. Query params: ipas (comma-separated organization
// codes), limit (ignored when ipas is set), status.
func (s *Server) HandleStartProcess(c *gin.Context) {
	var ipas []string
	if raw := strings.TrimSpace(c.Query("ipas")); raw != "" {
		for _, ipa := range strings.Split(raw, ",") {
			if ipa = strings.TrimSpace(ipa); ipa != "" {
				ipas = append(ipas, ipa)
			}
		}
	}

	limit := s.cfg.StartProcessLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	status, err := memberships.ParseStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := s.claims.Dispatchable(c.Request.Context(), ipas, limit, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.queue.Enqueue(c.Request.Context(), items...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.OrganizationCode)
	}
	s.log.Info("claims dispatched", zap.Int("count", len(codes)))
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Processing " + strconv.Itoa(len(codes)) + " of elements",
		"items":   codes,
	})
}

// normalizeDocuments accepts both payload shapes the change feed emits:
// a single document object or an array of them.
func normalizeDocuments(body []byte) ([]domain.SourceDocument, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errEmptyBody
	}

	if strings.HasPrefix(trimmed, "[") {
		var docs []domain.SourceDocument
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	var doc domain.SourceDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return []domain.SourceDocument{doc}, nil
}

var errEmptyBody = errInvalidPayload("empty request body")

type errInvalidPayload string

func (e errInvalidPayload) Error() string { return string(e) }
