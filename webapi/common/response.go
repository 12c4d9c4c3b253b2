package common

import (
	"errors"

	"github.com/amirasaad/unitconv/pkg/commands"
	"github.com/amirasaad/unitconv/pkg/exchange"
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// SuccessResponseJSON wraps data in a Response.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ProblemDetailsJSON writes err as a problem document. The status is derived
// from err unless one is given.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, status ...int) error {
	code := ErrorToStatusCode(err)
	if len(status) > 0 {
		code = status[0]
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   code,
		Instance: c.OriginalURL(),
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		pd.Detail = "request failed validation"
		pd.Errors = fields
	case err != nil:
		pd.Detail = err.Error()
	}
	return c.Status(code).JSON(pd, "application/problem+json")
}

// ErrorToStatusCode maps domain errors to HTTP status codes. Pricing-source
// failures are checked first because conversion errors wrap them.
func ErrorToStatusCode(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusInternalServerError
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, exchange.ErrMissingCredential):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, exchange.ErrTransport),
		errors.Is(err, exchange.ErrInvalidResponse),
		errors.Is(err, exchange.ErrInvalidRateFormat),
		errors.Is(err, exchange.ErrInvalidTimestamp),
		errors.Is(err, exchange.ErrRateNotFound):
		return fiber.StatusBadGateway
	case errors.Is(err, units.ErrUnknownUnit),
		errors.Is(err, units.ErrIncompatibleUnits),
		errors.Is(err, units.ErrEmptyValue),
		errors.Is(err, commands.ErrInvalidExpression):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, new(validator.ValidationErrors)):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

var validate = validator.New()

// BindAndValidate parses the request body and validates it. On failure the
// problem response is already written and the returned error is non-nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, errors.Join(err, ProblemDetailsJSON(c, "Invalid request body", err, fiber.StatusBadRequest))
	}
	if err := validate.Struct(input); err != nil {
		return nil, errors.Join(err, ProblemDetailsJSON(c, "Validation failed", err, fiber.StatusBadRequest))
	}
	return &input, nil
}
