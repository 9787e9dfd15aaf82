package website

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/perf"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Router struct {
	Routes []Route
}

type Route struct {
	Method  string
	Regexes []*regexp.Regexp
	Handler Handler
}

func (r *Route) String() string {
	var routeStrings []string
	for _, regex := range r.Regexes {
		routeStrings = append(routeStrings, regex.String())
	}
	return fmt.Sprintf("%s %v", r.Method, routeStrings)
}

type RouteBuilder struct {
	Router      *Router
	Prefixes    []*regexp.Regexp
	Middlewares []Middleware
}

type Handler func(c *RequestContext) ResponseData
type Middleware func(h Handler) Handler

func applyMiddlewares(h Handler, ms []Middleware) Handler {
	result := h
	for i := len(ms) - 1; i >= 0; i-- {
		result = ms[i](result)
	}
	return result
}

func (rb *RouteBuilder) Handle(methods []string, regex *regexp.Regexp, h Handler) {
	// Ensure that this regex matches the start of the string
	regexStr := regex.String()
	if len(regexStr) == 0 || regexStr[0] != '^' {
		panic("All routing regexes must begin with '^'")
	}

	h = applyMiddlewares(h, rb.Middlewares)
	for _, method := range methods {
		rb.Router.Routes = append(rb.Router.Routes, Route{
			Method:  method,
			Regexes: append(append([]*regexp.Regexp{}, rb.Prefixes...), regex),
			Handler: h,
		})
	}
}

func (rb *RouteBuilder) AnyMethod(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{""}, regex, h)
}

func (rb *RouteBuilder) GET(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodGet}, regex, h)
}

func (rb *RouteBuilder) POST(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodPost}, regex, h)
}

func (rb *RouteBuilder) DELETE(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodDelete}, regex, h)
}

// Routes added to the returned builder sit under regex and run ms after the
// parent's middlewares.
func (rb *RouteBuilder) Group(regex *regexp.Regexp, ms ...Middleware) RouteBuilder {
	newRb := *rb
	newRb.Prefixes = append(append([]*regexp.Regexp{}, rb.Prefixes...), regex)
	newRb.Middlewares = append(append([]Middleware{}, rb.Middlewares...), ms...)

	return newRb
}

func (r *Router) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet // HEADs map to GETs for the purposes of routing
	}

	path := strings.TrimSuffix(req.URL.Path, "/")
	for i := range r.Routes {
		route := &r.Routes[i]
		if route.Method != "" && method != route.Method {
			continue
		}

		params, ok := route.match(path)
		if !ok {
			continue
		}

		c := &RequestContext{
			Route:      route.String(),
			Logger:     logging.GlobalLogger(),
			Req:        req,
			Res:        rw,
			PathParams: params,

			ctx: req.Context(),
		}
		doRequest(rw, c, route.Handler)
		return
	}

	panic(fmt.Sprintf("Path '%s' did not match any routes! Make sure to register a wildcard route to act as a 404.", req.URL))
}

// Runs the route's regexes in order, each one consuming the prefix it
// matched. Named groups become path params.
func (route *Route) match(path string) (map[string]string, bool) {
	params := map[string]string{}
	rest := utils.OrDefault(path, "/")
	for _, regex := range route.Regexes {
		m := regex.FindStringSubmatch(rest)
		if m == nil {
			return nil, false
		}

		for i, name := range regex.SubexpNames() {
			if name == "" {
				continue
			}
			if _, dup := params[name]; dup {
				logging.Warn().Str("route", route.String()).Str("paramName", name).Msg("duplicate names for path parameters; last one wins")
			}
			params[name] = m[i]
		}

		// Never consume a trailing slash, so the next regex can still anchor on it
		rest = utils.OrDefault(rest[len(strings.TrimSuffix(m[0], "/")):], "/")
	}
	return params, true
}

type RequestContext struct {
	Route      string
	Logger     *zerolog.Logger
	Req        *http.Request
	PathParams map[string]string

	Res http.ResponseWriter

	Editor *marketdata.Editor

	// Set by the bearer token middleware when the request carries a valid token.
	CurrentVendorID *uuid.UUID

	Perf *perf.RequestPerf

	ctx context.Context
}

// Our RequestContext is a context.Context

var _ context.Context = &RequestContext{}

func (c *RequestContext) Deadline() (time.Time, bool) {
	return c.ctx.Deadline()
}

func (c *RequestContext) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *RequestContext) Err() error {
	return c.ctx.Err()
}

func (c *RequestContext) Value(key any) any {
	switch key {
	case perf.PerfContextKey:
		return c.Perf
	default:
		return c.ctx.Value(key)
	}
}

// Plus it does many other things specific to us

// Loggers attached here are what logging.ExtractLogger finds further down,
// in the editors and the image pipeline.
func (c *RequestContext) AttachLogger(logger *zerolog.Logger) {
	c.Logger = logger
	c.ctx = logging.AttachLoggerToContext(logger, c.ctx)
}

func (c *RequestContext) PathUUID(name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.PathParams[name])
	return id, err == nil
}

// Decodes a JSON request body into dest. Unknown fields are rejected so typos
// in field names do not silently do nothing.
func (c *RequestContext) ReadJson(dest any) error {
	dec := json.NewDecoder(io.LimitReader(c.Req.Body, maxJsonBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return NewSafeError(err, "The request body is not valid JSON for this endpoint.")
	}
	return nil
}

const maxJsonBodyBytes = 64 * 1024

type ResponseData struct {
	StatusCode int
	Body       *bytes.Buffer
	Errors     []error

	header http.Header
}

var _ http.ResponseWriter = &ResponseData{}

func (rd *ResponseData) Header() http.Header {
	if rd.header == nil {
		rd.header = make(http.Header)
	}

	return rd.header
}

func (rd *ResponseData) Write(p []byte) (n int, err error) {
	if rd.Body == nil {
		rd.Body = new(bytes.Buffer)
	}

	return rd.Body.Write(p)
}

func (rd *ResponseData) WriteHeader(status int) {
	rd.StatusCode = status
}

func (rd *ResponseData) WriteJson(data any, rp *perf.RequestPerf) {
	b := rp.StartBlock("JSON", "Encoding response")
	defer b.End()

	dataJson, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	rd.Header().Set("Content-Type", "application/json")
	rd.Write(dataJson)
}

func (c *RequestContext) JsonResponse(status int, data any) ResponseData {
	res := ResponseData{StatusCode: status}
	res.WriteJson(data, c.Perf)
	return res
}

// Writes the handler's ResponseData out. Bodies are always sent with an
// explicit Content-Length so HEAD requests can report it too.
func doRequest(rw http.ResponseWriter, c *RequestContext, h Handler) {
	defer func() {
		// Last resort. Handlers that want a proper error body go through
		// panicCatcherMiddleware.
		if recovered := recover(); recovered != nil {
			logging.LogPanicValue(c.Logger, recovered, "request panicked and was not handled")
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusInternalServerError)
			rw.Write([]byte(`{"error":"There was a problem handling your request."}`))
		}
	}()

	res := h(c)
	status := utils.OrDefault(res.StatusCode, http.StatusOK)

	for name, vals := range res.Header() {
		rw.Header()[name] = vals
	}
	if res.Body != nil {
		if rw.Header().Get("Content-Type") == "" {
			rw.Header().Set("Content-Type", http.DetectContentType(res.Body.Bytes()))
		}
		rw.Header().Set("Content-Length", strconv.Itoa(res.Body.Len()))
	}
	rw.WriteHeader(status)

	if res.Body == nil || c.Req.Method == http.MethodHead {
		return
	}
	if _, err := res.Body.WriteTo(rw); err != nil {
		if errors.Is(err, syscall.EPIPE) {
			c.Logger.Debug().Msg("Broken pipe")
		} else {
			c.Logger.Error().Err(err).Msg("failed to write response body")
		}
	}
}
