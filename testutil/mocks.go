package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer is a test server answering Helix and OAuth paths. Helix
// routes live under /helix, so clients use URL+"/helix" as their base.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockTwitchServer creates a new mock Twitch API server. Unknown routes
// answer 404. Handlers are keyed by "METHOD /path" or, for any method, "/path".
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r)
		m.mu.Unlock()
		if handler, ok := m.Handlers[r.Method+" "+r.URL.Path]; ok {
			handler(w, r)
			return
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL for a HelixClient pointed at this server.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// Requests returns the requests received so far.
func (m *MockTwitchServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// JSON registers a handler that answers key with status and body.
func (m *MockTwitchServer) JSON(key string, status int, body any) {
	m.Handlers[key] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockUserResponse adds a handler for the users endpoint.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.JSON("/helix/users", http.StatusOK, map[string]any{
		"data": []map[string]string{{"id": userID, "login": login, "display_name": login}},
	})
}

// MockGameResponse adds a handler for the games endpoint. An empty id answers
// with no data.
func (m *MockTwitchServer) MockGameResponse(id, name string) {
	data := []map[string]string{}
	if id != "" {
		data = append(data, map[string]string{"id": id, "name": name})
	}
	m.JSON("/helix/games", http.StatusOK, map[string]any{"data": data})
}

// MockChattersResponse serves the given logins as one page.
func (m *MockTwitchServer) MockChattersResponse(logins ...string) {
	data := make([]map[string]string, 0, len(logins))
	for _, l := range logins {
		data = append(data, map[string]string{"user_id": "id-" + l, "user_login": l, "user_name": l})
	}
	m.JSON("/helix/chat/chatters", http.StatusOK, map[string]any{"data": data, "pagination": map[string]string{}})
}

// MockModeratorsResponse serves the given logins as the moderator list.
func (m *MockTwitchServer) MockModeratorsResponse(logins ...string) {
	data := make([]map[string]string, 0, len(logins))
	for _, l := range logins {
		data = append(data, map[string]string{"user_id": "id-" + l, "user_login": l, "user_name": l})
	}
	m.JSON("/helix/moderation/moderators", http.StatusOK, map[string]any{"data": data, "pagination": map[string]string{}})
}

// MockFollowersResponse serves the given logins as followers, newest first.
func (m *MockTwitchServer) MockFollowersResponse(logins ...string) {
	data := make([]map[string]string, 0, len(logins))
	for _, l := range logins {
		data = append(data, map[string]string{"user_id": "id-" + l, "user_login": l, "user_name": l, "followed_at": "2024-01-01T00:00:00Z"})
	}
	m.JSON("/helix/channels/followers", http.StatusOK, map[string]any{"data": data})
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.JSON("/oauth2/token", http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": "refresh-" + accessToken,
		"expires_in":    expiresIn,
		"token_type":    "bearer",
	})
}
