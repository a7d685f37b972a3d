package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activityPage struct {
	Items []struct {
		AccountID string `json:"account_id"`
		Kind      string `json:"kind"`
	} `json:"items"`
	Total int64 `json:"total"`
}

func TestOwnActivity(t *testing.T) {
	email := uniqueEmail("activity")
	id := createAccount(t, email, "patient-secret-1", "patient")

	_ = login(t, email, "wrong-secret-1")
	access, _ := mustLogin(t, email, "patient-secret-1")

	resp := makeRequest("GET", "/activity", nil, access)
	require.True(t, resp.IsSuccess(), resp.Message)

	var page activityPage
	require.NoError(t, json.Unmarshal([]byte(resp.RawData), &page))
	require.Equal(t, int64(2), page.Total)
	// newest first
	assert.Equal(t, "login", page.Items[0].Kind)
	assert.Equal(t, "login_failed", page.Items[1].Kind)
	for _, it := range page.Items {
		assert.Equal(t, id, it.AccountID)
	}

	filtered := makeRequest("GET", "/activity?kind=login_failed", nil, access)
	require.True(t, filtered.IsSuccess())
	assert.Equal(t, float64(1), filtered.Data["total"])
}

func TestActivityFilterValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "unknown kind", query: "?kind=teleport"},
		{name: "bad date", query: "?from=yesterday"},
		{name: "inverted range", query: "?from=2026-02-01&to=2026-01-01"},
		{name: "negative offset", query: "?offset=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := makeRequest("GET", "/admin/activity"+tt.query, nil, authToken)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAdminActivityRequiresStaff(t *testing.T) {
	email := uniqueEmail("activity")
	createAccount(t, email, "patient-secret-1", "patient")
	access, _ := mustLogin(t, email, "patient-secret-1")

	resp := makeRequest("GET", "/admin/activity", nil, access)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = makeRequest("GET", "/admin/activity?kind=admin_action&page_size=500", nil, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	assert.Equal(t, float64(100), resp.Data["page_size"])
}

func TestHealthEndpoints(t *testing.T) {
	live := makeRequest("GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, live.StatusCode)

	ready := makeRequest("GET", "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}
