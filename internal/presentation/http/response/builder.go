package response

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/procura/pkg/errorbank"
)

// RetryAfterSeconds is advertised on responses to retryable failures.
const RetryAfterSeconds = 1

// Builder helps construct consistent HTTP responses.
type Builder struct {
	ctx     echo.Context
	status  int
	data    any
	message string
	err     error
	meta    map[string]any
	headers map[string]string
}

type successPayload struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorPayload struct {
	Success bool           `json:"success"`
	Error   errorBody      `json:"error"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithMessage attaches a human readable summary to a success payload.
func (b *Builder) WithMessage(message string) *Builder {
	b.message = message
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// WithHeader sets a response header, e.g. Location for created resources.
func (b *Builder) WithHeader(key, value string) *Builder {
	if key == "" || value == "" {
		return b
	}
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	b.headers[key] = value
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	b.attachRequestID()
	for k, v := range b.headers {
		b.ctx.Response().Header().Set(k, v)
	}
	if b.err != nil {
		return b.buildError()
	}
	return b.buildSuccess()
}

func (b *Builder) attachRequestID() {
	id := b.ctx.Response().Header().Get(echo.HeaderXRequestID)
	if id == "" {
		id = b.ctx.Request().Header.Get(echo.HeaderXRequestID)
	}
	if id != "" {
		b.WithMeta("request_id", id)
	}
}

func (b *Builder) buildSuccess() error {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.ctx.JSON(b.status, successPayload{
		Success: true,
		Data:    b.data,
		Message: b.message,
		Meta:    b.meta,
	})
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	if appErr.Retryable() {
		b.ctx.Response().Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}

	return b.ctx.JSON(status, errorPayload{
		Success: false,
		Error: errorBody{
			Kind:    string(appErr.Kind()),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}
