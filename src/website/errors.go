package website

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AldoManuel/juchifood/src/blobstore"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/marketdata"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func FourOhFour(c *RequestContext) ResponseData {
	return c.JsonResponse(http.StatusNotFound, errorBody{Error: "Not Found"})
}

// A SafeError can be used to wrap another error and explicitly provide
// an error message that is safe to show to a user. This allows the original
// error to easily be logged and for servers to consistently return errors
// in a standard format, without having to worry about leaking sensitive
// info (assuming you use the right middleware!).
type SafeError struct {
	Wrapped error
	Msg     string
}

func NewSafeError(err error, msg string, args ...interface{}) error {
	return &SafeError{
		Wrapped: err,
		Msg:     fmt.Sprintf(msg, args...),
	}
}

func (s *SafeError) Error() string {
	return s.Msg
}

func (s *SafeError) Unwrap() error {
	return s.Wrapped
}

// Responds with a JSON error body. The message comes from the first error that
// is safe to show; anything else gets the generic status text. Errors are
// kept on the response for logContextErrorsMiddleware.
func (c *RequestContext) ErrorResponse(status int, errs ...error) ResponseData {
	body := errorBody{Error: http.StatusText(status)}
	for _, err := range errs {
		var safe *SafeError
		var input *marketdata.InputError
		if errors.As(err, &input) {
			body = errorBody{Error: input.Message, Field: input.Field}
			break
		} else if errors.As(err, &safe) {
			body.Error = safe.Msg
			break
		}
	}

	res := c.JsonResponse(status, body)
	res.Errors = errs
	return res
}

// Picks the status for an error coming out of the editors. Only server-side
// failures are recorded for logging.
func (c *RequestContext) APIError(err error) ResponseData {
	var validation *imaging.ValidationError
	var input *marketdata.InputError
	var upload *blobstore.UploadError
	var safe *SafeError

	switch {
	case errors.As(err, &validation):
		return c.JsonResponse(http.StatusBadRequest, errorBody{Error: validation.UserMessage(), Field: "image"})
	case errors.As(err, &input):
		return c.JsonResponse(http.StatusBadRequest, errorBody{Error: input.Message, Field: input.Field})
	case errors.Is(err, marketdata.ErrInvalidCredentials):
		return c.JsonResponse(http.StatusUnauthorized, errorBody{Error: "Incorrect email or password."})
	case errors.Is(err, marketdata.ErrNotOwner):
		return c.JsonResponse(http.StatusForbidden, errorBody{Error: "You can only edit your own products."})
	case errors.Is(err, db.NotFound):
		return FourOhFour(c)
	case errors.Is(err, marketdata.ErrEmailTaken):
		return c.JsonResponse(http.StatusConflict, errorBody{Error: "An account with that email already exists.", Field: "email"})
	case errors.As(err, &upload):
		return c.ErrorResponse(http.StatusBadGateway, NewSafeError(err, "The image could not be stored. Please try again."))
	case errors.As(err, &safe):
		return c.ErrorResponse(http.StatusBadRequest, err)
	default:
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
}
