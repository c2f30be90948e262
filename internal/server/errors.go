package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnway/internal/attachment"
	basketdomain "github.com/smallbiznis/learnway/internal/basket/domain"
	contractdomain "github.com/smallbiznis/learnway/internal/contract/domain"
	orgdomain "github.com/smallbiznis/learnway/internal/organization/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

// abortWithError maps domain sentinel errors onto HTTP statuses. The
// error string doubles as the machine-readable tag.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orgdomain.ErrOrganizationUnknown),
		errors.Is(err, contractdomain.ErrContractNotFound),
		errors.Is(err, basketdomain.ErrRunNotFound),
		errors.Is(err, attachment.ErrCodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attachment.ErrCodeInvalid),
		errors.Is(err, attachment.ErrCodeNotUnlimited),
		errors.Is(err, attachment.ErrContractInactive),
		errors.Is(err, attachment.ErrNoContractLinked),
		errors.Is(err, basketdomain.ErrBasketNotEmpty),
		errors.Is(err, basketdomain.ErrBasketNotZeroValue),
		errors.Is(err, basketdomain.ErrOrderIncomplete),
		errors.Is(err, contractdomain.ErrInvalidName),
		errors.Is(err, contractdomain.ErrInvalidIntegration),
		errors.Is(err, contractdomain.ErrInvalidWindow):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, basketdomain.ErrUserNotFound):
		status = http.StatusUnauthorized
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error()})
}

// ClassifyError feeds the request logger's error fields.
func ClassifyError(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	return "domain", err.Error()
}
