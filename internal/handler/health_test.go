package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHealthHandler(t *testing.T) {
	t.Run("creates handler with correct initialization", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil, "1.2.3")

		require.NotNil(t, handler)
		assert.Equal(t, "1.2.3", handler.version)
		assert.False(t, handler.startTime.IsZero())
	})
}

func TestHealthHandler_Liveness(t *testing.T) {
	app := fiber.New()
	handler := NewHealthHandler(nil, nil, "1.0.0")
	app.Get("/livez", handler.Liveness)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]string
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "alive", result["status"])
}

func TestHealthHandler_Version(t *testing.T) {
	app := fiber.New()
	handler := NewHealthHandler(nil, nil, "2.1.0")
	app.Get("/version", handler.Version)

	time.Sleep(5 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]string
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", result["version"])
	assert.NotEmpty(t, result["uptime"])
}
