package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kusuridheeraj/sentinel/internal/domain"
	"github.com/kusuridheeraj/sentinel/internal/hashlink"
	"github.com/kusuridheeraj/sentinel/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// retryAfterSeconds is advertised to clients when the ledger is busy.
const retryAfterSeconds = "1"

type Server struct {
	ledgerService service.LedgerServiceInterface
}

func NewServer(ledgerService service.LedgerServiceInterface) *Server {
	return &Server{
		ledgerService: ledgerService,
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.HealthCheck)

	api := e.Group("/api")
	tenants := api.Group("/tenants/:tenant")
	tenants.POST("/entries", s.AppendEntry)
	tenants.GET("/entries", s.ListEntries)
	tenants.GET("/verify", s.VerifyChain)
}

func (s *Server) HealthCheck(c echo.Context) error {
	if err := s.ledgerService.Health(c.Request().Context()); err != nil {
		log.WithField("error", err).Error("Health check failed: ledger store is down")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "ledger store unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) AppendEntry(c echo.Context) error {
	tenantID := c.Param("tenant")

	req, err := decodeAppendRequest(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	entry, err := s.ledgerService.Append(ctx, req.Event(tenantID))
	if err != nil {
		return s.handleLedgerError(c, err, tenantID, "Failed to append ledger entry")
	}

	return c.JSON(http.StatusCreated, entry)
}

// decodeAppendRequest keeps context numbers as json.Number so large
// integers are hashed and stored exactly as sent.
func decodeAppendRequest(body io.Reader) (domain.AppendRequest, error) {
	var req domain.AppendRequest

	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) ListEntries(c echo.Context) error {
	tenantID := c.Param("tenant")

	var afterSeq int64
	if v := c.QueryParam("after_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "after_seq must be a non-negative integer",
			})
		}
		afterSeq = n
	}

	ctx := c.Request().Context()
	entries, err := s.ledgerService.ListEntries(ctx, tenantID, afterSeq)
	if err != nil {
		return s.handleLedgerError(c, err, tenantID, "Failed to list ledger entries")
	}
	if entries == nil {
		entries = []domain.Entry{}
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) VerifyChain(c echo.Context) error {
	tenantID := c.Param("tenant")

	opts := service.VerifyOptions{Deep: c.QueryParam("deep") == "true"}

	fromSeq, fromHash := c.QueryParam("from_seq"), c.QueryParam("from_hash")
	if fromSeq != "" || fromHash != "" {
		seq, err := strconv.ParseInt(fromSeq, 10, 64)
		if err != nil || seq < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "from_seq must be a non-negative integer",
			})
		}
		if !hashlink.IsHash(fromHash) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "from_hash must be a 64 character lowercase hex digest",
			})
		}
		opts.From = &domain.Checkpoint{Seq: seq, Hash: fromHash}
	}

	ctx := c.Request().Context()
	result, err := s.ledgerService.Verify(ctx, tenantID, opts)
	if err != nil {
		return s.handleLedgerError(c, err, tenantID, "Failed to verify ledger chain")
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleLedgerError(c echo.Context, err error, tenantID, msg string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrLedgerBusy):
		log.WithError(err).WithField("tenant_id", tenantID).Warn(msg)
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": domain.ErrLedgerBusy.Error(),
		})
	default:
		log.WithError(err).WithField("tenant_id", tenantID).Error(msg)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
