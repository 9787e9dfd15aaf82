package website

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AldoManuel/juchifood/src/auth"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/perf"
	"github.com/google/uuid"
)

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(*error)
				var err error
				if ok {
					err = *maybeError
				} else {
					err = oops.New(nil, fmt.Sprintf("Recovered from panic with value: %v", recovered))
				}
				res = c.ErrorResponse(http.StatusInternalServerError, err)
			}
		}()

		return h(c)
	}
}

// Every request gets a request id on its logger, so log lines from deep in the
// image pipeline can be matched to the request that caused them.
func requestLoggerMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		logger := c.Logger.With().
			Str("requestId", uuid.NewString()[:8]).
			Str("method", c.Req.Method).
			Str("path", c.Req.URL.Path).
			Logger()
		c.AttachLogger(&logger)
		return h(c)
	}
}

func trackRequestPerf(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
		defer func() {
			c.Perf.EndRequest()
			log := c.Logger.Debug()
			c.Perf.MarshalBlocks(log)
			log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.End.Sub(c.Perf.Start).Nanoseconds())/1000/1000))
		}()

		return h(c)
	}
}

func injectEditor(editor *marketdata.Editor) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Editor = editor
			return h(c)
		}
	}
}

// Reads an "Authorization: Bearer <token>" header, if present. A missing
// header leaves the request anonymous; a bad one is rejected outright.
func bearerTokenMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		header := c.Req.Header.Get("Authorization")
		if header == "" {
			return h(c)
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return c.ErrorResponse(http.StatusUnauthorized, NewSafeError(nil, "The Authorization header must be a bearer token."))
		}

		vendorID, err := auth.ParseVendorToken(strings.TrimSpace(token))
		if err != nil {
			msg := "Your session is not valid. Please log in again."
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Your session has expired. Please log in again."
			}
			return c.ErrorResponse(http.StatusUnauthorized, NewSafeError(err, msg))
		}

		c.CurrentVendorID = &vendorID
		logger := c.Logger.With().Str("vendor", vendorID.String()).Logger()
		c.AttachLogger(&logger)

		return h(c)
	}
}

func needsAuth(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.CurrentVendorID == nil {
			return c.ErrorResponse(http.StatusUnauthorized, NewSafeError(nil, "You must be logged in to do that."))
		}

		return h(c)
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.Req.URL.String()).Err(err).Msg("error occurred during request")
	}
}

// Client mistakes are answered but not logged as errors.
func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		if res.StatusCode >= http.StatusInternalServerError {
			logContextErrors(c, res.Errors...)
		} else if len(res.Errors) > 0 {
			c.Logger.Debug().Int("status", res.StatusCode).Errs("errors", res.Errors).Msg("request rejected")
		}
		return res
	}
}
