package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "with type",
			err: &APIError{
				Provider:   "openai",
				StatusCode: 429,
				Message:    "rate limit exceeded",
				Type:       "rate_limit_error",
			},
			want: "openai: API error (status 429, type rate_limit_error): rate limit exceeded",
		},
		{
			name: "without type",
			err: &APIError{
				Provider:   "gemini",
				StatusCode: 400,
				Message:    "bad request",
			},
			want: "gemini: API error (status 400): bad request",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAPIError_IsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{name: "network error", err: &APIError{StatusCode: 0}, want: true},
		{name: "rate limited", err: &APIError{StatusCode: 429}, want: true},
		{name: "server error", err: &APIError{StatusCode: 500}, want: true},
		{name: "bad gateway", err: &APIError{StatusCode: 502}, want: true},
		{name: "bad request", err: &APIError{StatusCode: 400}, want: false},
		{name: "unauthorized", err: &APIError{StatusCode: 401}, want: false},
		{name: "not found", err: &APIError{StatusCode: 404}, want: false},
		{
			name: "quota message on 403",
			err:  &APIError{StatusCode: 403, Message: "Quota exceeded for requests per day"},
			want: true,
		},
		{
			name: "resource exhausted status string",
			err:  &APIError{StatusCode: 400, Type: "RESOURCE_EXHAUSTED"},
			want: true,
		},
		{
			name: "rate limit code",
			err:  &APIError{StatusCode: 400, Code: "rate_limit_exceeded"},
			want: true,
		},
		{
			name: "overloaded",
			err:  &APIError{StatusCode: 400, Type: "overloaded_error"},
			want: true,
		},
		{
			name: "plain invalid request",
			err:  &APIError{StatusCode: 400, Message: "missing field: model"},
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.IsTransient())
		})
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(&APIError{StatusCode: 503}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 429})))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
	assert.False(t, IsTransient(errors.New("failed to parse JSON")))
	assert.False(t, IsTransient(nil))
}
