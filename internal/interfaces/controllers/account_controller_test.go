package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountController_CheckAccount(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-alice", r.Header.Get("Authorization"))
		assert.Equal(t, "-480", r.URL.Query().Get("timezone_offset_min"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accounts":{"default":{"account":{"plan_type":"plus"}}}}`))
	}))
	defer upstream.Close()

	controller := NewAccountController(upstream.Client(), upstream.URL+"/backend-api/accounts/check/v4-2023-04-27?timezone_offset_min=-480")
	req := httptest.NewRequest(http.MethodGet, "/api/check?m_token=Bearer%20at-alice", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, controller.CheckAccount(echo.New().NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "plus")
}

func TestAccountController_CheckAccountUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	controller := NewAccountController(upstream.Client(), upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/check?m_token=expired", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, controller.CheckAccount(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountController_CheckAccountWithoutToken(t *testing.T) {
	controller := NewAccountController(http.DefaultClient, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/api/check", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, controller.CheckAccount(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountController_LogoutAll(t *testing.T) {
	controller := NewAccountController(http.DefaultClient, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/backend-api/accounts/logout_all", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, controller.LogoutAll(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
