package core_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/core"
)

type echoRequest struct {
	Name string `json:"name"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) core.JSONResponse {
	t.Helper()
	var body struct {
		Data  json.RawMessage   `json:"data"`
		Error *core.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	var data any
	if len(body.Data) > 0 {
		require.NoError(t, json.Unmarshal(body.Data, &data))
	}
	return core.JSONResponse{Data: data, Error: body.Error}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binders run in order and feed the handler", func(t *testing.T) {
		t.Parallel()

		var calls []string
		first := func(r *http.Request, v any) error {
			calls = append(calls, "first")
			v.(*echoRequest).Name = "from-first"
			return nil
		}
		second := func(r *http.Request, v any) error {
			calls = append(calls, "second")
			v.(*echoRequest).Name += "+second"
			return nil
		}

		h := core.Wrap(func(ctx core.Context, req echoRequest) core.Response {
			return core.JSON(map[string]string{"name": req.Name})
		}, core.WithBinders[core.Context, echoRequest](first, second))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, []string{"first", "second"}, calls)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"name": "from-first+second"}, decodeBody(t, rec).Data)
	})

	t.Run("binder error stops the chain", func(t *testing.T) {
		t.Parallel()

		called := false
		failing := func(*http.Request, any) error { return core.ErrBadRequest.WithMessage("nope") }

		h := core.Wrap(func(ctx core.Context, req echoRequest) core.Response {
			called = true
			return core.Empty()
		}, core.WithBinders[core.Context, echoRequest](failing))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "bad_request", body.Error.Code)
		assert.Equal(t, "nope", body.Error.Message)
	})

	t.Run("nil response is an internal error", func(t *testing.T) {
		t.Parallel()

		var got error
		h := core.Wrap(func(ctx core.Context, req echoRequest) core.Response {
			return nil
		}, core.WithErrorHandler[core.Context, echoRequest](func(ctx core.Context, err error) {
			got = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.ErrorIs(t, got, core.ErrNilResponse)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("context carries the request context", func(t *testing.T) {
		t.Parallel()

		type key struct{}
		h := core.Wrap(func(ctx core.Context, req struct{}) core.Response {
			return core.JSON(ctx.Value(key{}))
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(contextWith(req, key{}, "v"))

		rec := httptest.NewRecorder()
		h(rec, req)
		assert.Equal(t, "v", decodeBody(t, rec).Data)
	})
}

type userContext struct {
	core.Context
	userID string
}

func TestWrap_CustomContextAndDecorators(t *testing.T) {
	t.Parallel()

	factory := func(w http.ResponseWriter, r *http.Request) userContext {
		return userContext{Context: core.NewContext(w, r), userID: r.Header.Get("X-User-ID")}
	}

	var order []string
	trace := func(name string) core.Decorator[userContext, struct{}] {
		return func(next core.HandlerFunc[userContext, struct{}]) core.HandlerFunc[userContext, struct{}] {
			return func(ctx userContext, req struct{}) core.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	var requireUser core.Decorator[userContext, struct{}] = func(next core.HandlerFunc[userContext, struct{}]) core.HandlerFunc[userContext, struct{}] {
		return func(ctx userContext, req struct{}) core.Response {
			if ctx.userID == "" {
				return core.JSONError(core.ErrUnauthorized)
			}
			return next(ctx, req)
		}
	}

	h := core.Wrap(func(ctx userContext, req struct{}) core.Response {
		return core.JSON(ctx.userID)
	},
		core.WithContextFactory[userContext, struct{}](factory),
		core.WithDecorators(trace("outer"), trace("inner"), requireUser),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u1")
	h(rec, req)

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "u1", decodeBody(t, rec).Data)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWrap_DefaultFactoryPanicsForCustomContext(t *testing.T) {
	t.Parallel()

	h := core.Wrap(func(ctx userContext, req struct{}) core.Response {
		return core.Empty()
	})
	assert.Panics(t, func() {
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	buf := &strings.Builder{}
	log := newTestLogger(buf)
	handle := core.NewErrorHandler[core.Context](log)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/usage/message", nil)
	handle(core.NewContext(rec, req), errors.New("db is down"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "internal_server_error", body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "db is down")
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "db is down")

	buf.Reset()
	rec = httptest.NewRecorder()
	handle(core.NewContext(rec, req), core.ErrConflict)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, buf.String(), "level=WARN")
}
