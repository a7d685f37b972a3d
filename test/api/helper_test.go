package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// APIResponse represents the API response structure
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// TestResponse wraps the API response for testing
type TestResponse struct {
	StatusCode int
	Status     string
	Message    string
	Data       map[string]interface{}
	RawData    string
	RawErrors  string
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r TestResponse) GetString(key string) string {
	if r.Data == nil {
		return ""
	}
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

func makeRequest(method, path string, body interface{}, token string) TestResponse {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return TestResponse{Status: "error", Message: err.Error()}
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TestResponse{StatusCode: resp.StatusCode, Status: "error", Message: err.Error()}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return TestResponse{StatusCode: resp.StatusCode, Status: "error", Message: string(respBody)}
	}

	out := TestResponse{
		StatusCode: resp.StatusCode,
		Status:     apiResp.Status,
		Message:    apiResp.Message,
		RawData:    string(apiResp.Data),
		RawErrors:  string(apiResp.Errors),
	}
	if len(apiResp.Data) > 0 {
		_ = json.Unmarshal(apiResp.Data, &out.Data)
	}
	return out
}

var seq atomic.Int64

// uniqueEmail returns a fresh address per call.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@clinic.example", prefix, seq.Add(1))
}

// createAccount registers an account through the admin API and returns its id.
func createAccount(t *testing.T, email, password, role string) string {
	t.Helper()
	resp := makeRequest("POST", "/admin/accounts", map[string]interface{}{
		"email":    email,
		"name":     "Test " + role,
		"password": password,
		"role":     role,
	}, authToken)
	require.True(t, resp.IsSuccess(), "failed to create account: %s", resp.Message)
	id := resp.GetString("id")
	require.NotEmpty(t, id)
	return id
}

func login(t *testing.T, email, password string) TestResponse {
	t.Helper()
	return makeRequest("POST", "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
}

func mustLogin(t *testing.T, email, password string) (access, refresh string) {
	t.Helper()
	resp := login(t, email, password)
	require.True(t, resp.IsSuccess(), "login failed: %s", resp.Message)
	return resp.GetString("access_token"), resp.GetString("refresh_token")
}
