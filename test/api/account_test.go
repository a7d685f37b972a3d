package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountFlow(t *testing.T) {
	email := uniqueEmail("patient")
	accountID := createAccount(t, email, "patient-secret-1", "patient")

	access, _ := mustLogin(t, email, "patient-secret-1")

	meResp := makeRequest("GET", "/accounts/me", nil, access)
	require.True(t, meResp.IsSuccess())
	assert.Equal(t, accountID, meResp.GetString("id"))
	assert.Equal(t, email, meResp.GetString("email"))
	assert.Equal(t, orgID.String(), meResp.GetString("organization_id"))
	assert.NotContains(t, meResp.RawData, "password_hash")

	historyResp := makeRequest("GET", "/accounts/me/password-history", nil, access)
	require.True(t, historyResp.IsSuccess())
	assert.Equal(t, float64(0), historyResp.Data["entries"])
	assert.Equal(t, float64(5), historyResp.Data["max_entries"])
}

func TestRegisterValidation(t *testing.T) {
	resp := makeRequest("POST", "/admin/accounts", map[string]interface{}{
		"email":    "not-an-email",
		"name":     "Bad",
		"password": "short",
		"role":     "root",
	}, authToken)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fields []map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.RawErrors), &fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f["field"])
	}
	assert.ElementsMatch(t, []string{"email", "password", "role"}, names)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	email := uniqueEmail("moderator")
	createAccount(t, email, "moderator-secret-1", "moderator")
	access, _ := mustLogin(t, email, "moderator-secret-1")

	resp := makeRequest("POST", "/admin/accounts", map[string]interface{}{
		"email":    uniqueEmail("patient"),
		"name":     "Nope",
		"password": "patient-secret-1",
		"role":     "patient",
	}, access)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestModeratorLockAndUnlock(t *testing.T) {
	modEmail := uniqueEmail("moderator")
	createAccount(t, modEmail, "moderator-secret-1", "moderator")
	modAccess, _ := mustLogin(t, modEmail, "moderator-secret-1")

	email := uniqueEmail("patient")
	id := createAccount(t, email, "patient-secret-1", "patient")

	lockResp := makeRequest("POST", fmt.Sprintf("/admin/accounts/%s/lock", id), map[string]interface{}{
		"reason":           "suspicious activity",
		"duration_minutes": 60,
	}, modAccess)
	require.True(t, lockResp.IsSuccess(), lockResp.Message)
	assert.NotEmpty(t, lockResp.GetString("locked_until"))

	resp := login(t, email, "patient-secret-1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unlockResp := makeRequest("POST", fmt.Sprintf("/admin/accounts/%s/unlock", id), map[string]interface{}{
		"reason": "verified by phone",
	}, modAccess)
	require.True(t, unlockResp.IsSuccess(), unlockResp.Message)

	mustLogin(t, email, "patient-secret-1")
}

func TestPatientCannotModerate(t *testing.T) {
	email := uniqueEmail("patient")
	id := createAccount(t, email, "patient-secret-1", "patient")
	access, _ := mustLogin(t, email, "patient-secret-1")

	other := createAccount(t, uniqueEmail("patient"), "patient-secret-1", "patient")
	resp := makeRequest("POST", fmt.Sprintf("/admin/accounts/%s/lock", other), nil, access)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// the refusal is audited off the request path
	assert.Eventually(t, func() bool {
		denied := makeRequest("GET", fmt.Sprintf("/admin/activity?kind=admin_action&account_id=%s", id), nil, authToken)
		return denied.IsSuccess() && denied.Data["total"] == float64(1)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDeactivation(t *testing.T) {
	email := uniqueEmail("patient")
	id := createAccount(t, email, "patient-secret-1", "patient")

	resp := makeRequest("DELETE", fmt.Sprintf("/admin/accounts/%s", id), nil, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)

	loginResp := login(t, email, "patient-secret-1")
	assert.Equal(t, http.StatusForbidden, loginResp.StatusCode)

	selfEmail := uniqueEmail("patient")
	createAccount(t, selfEmail, "patient-secret-1", "patient")
	access, _ := mustLogin(t, selfEmail, "patient-secret-1")

	wrong := makeRequest("POST", "/accounts/me/deactivate", map[string]string{"password": "nope-nope-1"}, access)
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	ok := makeRequest("POST", "/accounts/me/deactivate", map[string]string{"password": "patient-secret-1"}, access)
	require.True(t, ok.IsSuccess(), ok.Message)
}
