package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"homesync/internal/auth"
	"homesync/internal/models"
	"homesync/internal/shopping"
	"homesync/internal/store"
	"homesync/internal/week"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingToken = fmt.Errorf("%w: authorization header required", auth.ErrUnauthorized)
	errNotMember    = errors.New("not a member of this household")
	errNotAdmin     = errors.New("only household admins can do this")
)

// validationError is a request the handler refuses to pass to the store.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// notFound names the missing resource while keeping store.ErrNotFound in the
// chain.
func notFound(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %w", what, store.ErrNotFound)
	}
	return err
}

// statusFor maps an error onto the HTTP status the client sees.
func statusFor(err error) int {
	var verr *validationError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errNotMember), errors.Is(err, errNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &verr),
		errors.Is(err, week.ErrInvalidDate),
		errors.Is(err, shopping.ErrMalformedIngredient),
		errors.Is(err, models.ErrIngredientEncoding):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response for err and stops the handler chain.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	c.Error(err)

	msg := err.Error()
	switch status {
	case http.StatusUnauthorized:
		msg = "unauthorized: " + msg
	case http.StatusServiceUnavailable:
		msg = "the data store did not answer in time, retry later"
	case http.StatusInternalServerError:
		s.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err))
		msg = "internal error"
	}
	abortJSON(c, status, gin.H{"error": msg})
}
