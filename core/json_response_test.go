package core_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/core"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := core.JSON(map[string]int{"used": 3}, core.WithJSONStatus(http.StatusCreated), core.WithJSONMeta(map[string]any{"v": 1}))
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"used":3},"meta":{"v":1}}`, rec.Body.String())
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		opts   []core.JSONOption
		status int
		body   string
	}{
		{
			name:   "http error uses status text",
			err:    core.ErrNotFound,
			status: http.StatusNotFound,
			body:   `{"error":{"code":"not_found","message":"Not Found"}}`,
		},
		{
			name:   "wrapped http error keeps its message",
			err:    fmt.Errorf("lookup: %w", core.ErrConflict.WithMessage("already subscribed")),
			status: http.StatusConflict,
			body:   `{"error":{"code":"conflict","message":"already subscribed"}}`,
		},
		{
			name:   "retryable",
			err:    core.ErrBadGateway.AsRetryable(),
			status: http.StatusBadGateway,
			body:   `{"error":{"code":"bad_gateway","message":"Bad Gateway","retryable":true}}`,
		},
		{
			name:   "validation error",
			err:    core.ValidationError{"plan_id": {"is required"}},
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"code":"validation_error","message":"validation error: plan_id: is required","details":{"plan_id":["is required"]}}}`,
		},
		{
			name:   "details option",
			err:    core.ErrTooManyRequests,
			opts:   []core.JSONOption{core.WithErrorDetails(map[string]any{"permanent": true})},
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":"too_many_requests","message":"Too Many Requests","details":{"permanent":true}}}`,
		},
		{
			name:   "plain error is opaque",
			err:    fmt.Errorf("connection refused"),
			status: http.StatusInternalServerError,
			body:   `{"error":{"code":"internal_server_error","message":"Internal Server Error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			require.NoError(t, core.JSONError(tt.err, tt.opts...).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, core.StatusOf(tt.err))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, core.Empty().Render(rec, httptest.NewRequest(http.MethodDelete, "/", nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, core.EmptyWithStatus(http.StatusAccepted).Render(rec, httptest.NewRequest(http.MethodPost, "/", nil)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	v := core.NewValidationError()
	assert.True(t, v.IsEmpty())
	assert.Equal(t, "validation failed", v.Error())

	v.Add("b", "bad")
	v.Add("a", "missing")
	v.Add("a", "second")
	assert.True(t, v.Has("a"))
	assert.False(t, v.Has("c"))
	assert.Equal(t, "missing", v.Get("a"))
	assert.Equal(t, "validation error: a: missing, b: bad", v.Error())
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not_found", core.ErrNotFound.Error())
	assert.Equal(t, "conflict: taken", core.ErrConflict.WithMessage("taken").Error())
	assert.Empty(t, core.ErrConflict.Message, "WithMessage must not mutate the shared value")

	custom := core.NewHTTPError(http.StatusGone, "plan_retired")
	assert.Equal(t, http.StatusGone, custom.Code)
	assert.False(t, custom.Retryable)
	assert.True(t, custom.AsRetryable().Retryable)
}
