package service

import (
	"net/http"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"

	"github.com/sherlock-kb/sherlock/internal/apperr"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		hasTag    func(error) bool
		retryable bool
	}{
		{"rate limit is transient", http.StatusTooManyRequests,
			func(err error) bool { return goerr.HasTag(err, apperr.TagTransient) }, true},
		{"server error is transient", http.StatusBadGateway,
			func(err error) bool { return goerr.HasTag(err, apperr.TagTransient) }, true},
		{"unauthorized is config", http.StatusUnauthorized,
			func(err error) bool { return goerr.HasTag(err, apperr.TagConfig) }, false},
		{"forbidden is config", http.StatusForbidden,
			func(err error) bool { return goerr.HasTag(err, apperr.TagConfig) }, false},
		{"bad request is validation", http.StatusBadRequest,
			func(err error) bool { return goerr.HasTag(err, apperr.TagValidation) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := goerr.New("upstream error", classifyStatus(tt.status))
			assert.True(t, tt.hasTag(err))
			assert.Equal(t, tt.retryable, apperr.IsRetryable(err))
		})
	}
}
