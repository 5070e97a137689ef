package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
)

const dateLayout = "2006-01-02"

// PositionsCache is the adjusted-position read cache the handlers drive:
// reads consult it, every mutating path invalidates the touched key.
type PositionsCache interface {
	Get(ctx context.Context, ownerID uuid.UUID, accountID, ticker string) *entities.AdjustedPosition
	Set(ctx context.Context, position *entities.AdjustedPosition)
	Invalidate(ctx context.Context, ownerID uuid.UUID, accountID, ticker string)
}

// RegisterValidations installs custom request validations on gin's binding
// engine. Call once at startup.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	return v.RegisterValidation("tradedate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// respondError maps a service error onto the HTTP response. Ledger errors
// carry their own status code and machine-readable code; anything else is a
// masked 500.
func respondError(c *gin.Context, err error) {
	var ledgerErr *apperrors.LedgerError
	if errors.As(err, &ledgerErr) {
		c.JSON(ledgerErr.StatusCode, gin.H{
			"code":       string(ledgerErr.Code),
			"message":    ledgerErr.Message,
			"details":    ledgerErr.Details,
			"request_id": getRequestID(c),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"code":       string(apperrors.ErrCodeInternal),
		"message":    "internal server error",
		"request_id": getRequestID(c),
	})
}

// respondBindError turns a gin binding failure into a 400 with the same
// shape as service validation errors.
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":       string(apperrors.ErrCodeValidation),
		"message":    err.Error(),
		"request_id": getRequestID(c),
	})
}

// parseDate parses a YYYY-MM-DD request field as a UTC date.
func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.ValidationError("invalid date, expected YYYY-MM-DD").AddDetail("value", value)
	}
	return t.UTC(), nil
}

// parseOptionalDate parses an optional as-of query parameter.
func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
