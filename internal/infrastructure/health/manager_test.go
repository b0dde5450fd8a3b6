package health

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthAggregation(t *testing.T) {
	m := NewManager(nil)
	m.Register("adapter", func() error { return nil })
	assert.True(t, m.Healthy())

	m.Register("cash_feed", func() error { return errors.New("degraded") })
	assert.False(t, m.Healthy())

	status := m.Status()
	assert.Equal(t, "healthy", status["adapter"])
	assert.Contains(t, status["cash_feed"], "unhealthy")
}

func TestHealthHandlerStatusCode(t *testing.T) {
	m := NewManager(nil)
	m.Register("adapter", func() error { return nil })

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)

	m.Register("venue", func() error { return errors.New("down") })
	rec = httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
}
