package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/directory"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", directory.SecretLength)

func doRequest(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func csrfHeaders() map[string]string {
	return map[string]string{"X-CSRF-Token": testCSRF}
}

func authHeaders(token string) map[string]string {
	return map[string]string{
		"X-CSRF-Token":  testCSRF,
		"Authorization": "Bearer " + token,
	}
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name           string
		userName       string
		headers        map[string]string
		taken          bool
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "created",
			userName:       "Testy",
			headers:        csrfHeaders(),
			expectedStatus: http.StatusCreated,
			expectedBody:   `"user_hash":"` + testSecret + `7"`,
		},
		{
			name:           "missing csrf",
			userName:       "Testy",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"unauthorized"`,
		},
		{
			name:           "empty name",
			userName:       "",
			headers:        csrfHeaders(),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "User name cannot be empty",
		},
		{
			name:           "name too long",
			userName:       strings.Repeat("x", domain.NameLength+1),
			headers:        csrfHeaders(),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "User name cannot be longer than 32 characters",
		},
		{
			name:           "name taken",
			userName:       "Testy",
			headers:        csrfHeaders(),
			taken:          true,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "User name Testy is already taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &mockDirectory{
				lookupUserFunc: func(_ context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error) {
					return directory.LookupUserResponse{Found: tt.taken}, nil
				},
				createUserFunc: func(_ context.Context, req directory.CreateUserRequest) (directory.CreateUserResponse, error) {
					return directory.CreateUserResponse{
						Created: true,
						User:    directory.UserView{ID: 7, Name: req.UserName},
						Secret:  testSecret,
					}, nil
				},
			}
			_, app := newTestModule(t, dir, newMockIdentity())

			status, body := doRequest(t, app, "POST", "/chat/api/v1/user/create", CreateUserRequest{UserName: tt.userName}, tt.headers)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, string(body), tt.expectedBody)
		})
	}
}

func TestLogin(t *testing.T) {
	dir := &mockDirectory{
		verifyUserFunc: func(_ context.Context, req directory.VerifyUserRequest) (directory.VerifyUserResponse, error) {
			if req.UserID == 7 && req.Secret == testSecret {
				return directory.VerifyUserResponse{Valid: true, User: directory.UserView{ID: 7, Name: "Testy"}}, nil
			}
			return directory.VerifyUserResponse{Valid: false}, nil
		},
	}
	_, app := newTestModule(t, dir, newMockIdentity())

	t.Run("valid hash", func(t *testing.T) {
		status, body := doRequest(t, app, "POST", "/chat/api/v1/user/login",
			LoginRequest{UserHash: directory.UserHash(testSecret, 7)}, csrfHeaders())
		require.Equal(t, http.StatusOK, status)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Equal(t, LoginResponse{UserID: 7, UserName: "Testy", UserToken: "token-Testy"}, resp)
	})

	failures := map[string]string{
		"malformed hash": "short",
		"wrong secret":   directory.UserHash(strings.Repeat("x", directory.SecretLength), 7),
		"unknown user":   directory.UserHash(testSecret, 8),
	}
	for name, hash := range failures {
		t.Run(name, func(t *testing.T) {
			status, body := doRequest(t, app, "POST", "/chat/api/v1/user/login", LoginRequest{UserHash: hash}, csrfHeaders())
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.JSONEq(t, `{"error":"unauthorized","message":"Unauthorized"}`, string(body))
		})
	}
}

func TestCreateRoom(t *testing.T) {
	var created []directory.CreateRoomRequest
	dir := &mockDirectory{
		lookupRoomFunc: func(_ context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error) {
			return directory.LookupRoomResponse{Found: req.RoomName == "Lobby" && req.OwnerID == 1}, nil
		},
		createRoomFunc: func(_ context.Context, req directory.CreateRoomRequest) (directory.CreateRoomResponse, error) {
			created = append(created, req)
			return directory.CreateRoomResponse{
				Created: true,
				Room:    directory.RoomView{ID: "room-9", Name: req.RoomName, OwnerID: req.OwnerID},
			}, nil
		},
	}
	_, app := newTestModule(t, dir, newMockIdentity())

	status, body := doRequest(t, app, "POST", "/chat/api/v1/room/create", CreateRoomRequest{RoomName: "Den"}, csrfHeaders())
	assert.Equal(t, http.StatusUnauthorized, status, string(body))

	status, body = doRequest(t, app, "POST", "/chat/api/v1/room/create", CreateRoomRequest{RoomName: "Lobby"}, authHeaders(testTokenA))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "You already own a room named Lobby")

	status, body = doRequest(t, app, "POST", "/chat/api/v1/room/create", CreateRoomRequest{RoomName: "Den"}, authHeaders(testTokenA))
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"room_id":"room-9","room_name":"Den"}`, string(body))

	require.Len(t, created, 1)
	assert.Equal(t, directory.CreateRoomRequest{RoomName: "Den", OwnerID: 1}, created[0])
}

func TestRoomEndpoints(t *testing.T) {
	var joins []directory.JoinRoomRequest
	dir := &mockDirectory{
		lookupRoomFunc: knownRoom,
		joinRoomFunc: func(_ context.Context, req directory.JoinRoomRequest) (directory.JoinRoomResponse, error) {
			joins = append(joins, req)
			return directory.JoinRoomResponse{Found: true}, nil
		},
		roomMembersFunc: func(_ context.Context, req directory.RoomMembersRequest) (directory.RoomMembersResponse, error) {
			if req.RoomID != "room-1" {
				return directory.RoomMembersResponse{Found: false}, nil
			}
			return directory.RoomMembersResponse{Found: true, Members: []domain.Member{
				{UserID: 1, UserName: "U1"},
				{UserID: 2, UserName: "U2"},
			}}, nil
		},
	}
	_, app := newTestModule(t, dir, newMockIdentity())

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedBody   string
	}{
		{"get room", "GET", "/chat/api/v1/room/room-1", http.StatusOK, `{"room_id":"room-1","room_name":"Lobby","owner_id":1}`},
		{"get unknown room", "GET", "/chat/api/v1/room/missing", http.StatusNotFound, `{"error":"not_found","message":"Room not found"}`},
		{"join room", "PUT", "/chat/api/v1/room/room-1/join", http.StatusOK, `{"room_id":"room-1","room_name":"Lobby"}`},
		{"join unknown room", "PUT", "/chat/api/v1/room/missing/join", http.StatusNotFound, `{"error":"not_found","message":"Room not found"}`},
		{"members", "GET", "/chat/api/v1/room/room-1/members", http.StatusOK, `[{"user_id":1,"user_name":"U1"},{"user_id":2,"user_name":"U2"}]`},
		{"members of unknown room", "GET", "/chat/api/v1/room/missing/members", http.StatusNotFound, `{"error":"not_found","message":"Room not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.method, tt.path, nil, authHeaders(testTokenB))
			assert.Equal(t, tt.expectedStatus, status)
			assert.JSONEq(t, tt.expectedBody, string(body))
		})
	}

	require.Len(t, joins, 1)
	assert.Equal(t, directory.JoinRoomRequest{RoomID: "room-1", UserID: 2}, joins[0])
}

func TestRoomEndpoints_RequireCredentials(t *testing.T) {
	_, app := newTestModule(t, &mockDirectory{lookupRoomFunc: knownRoom}, newMockIdentity())

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no headers", nil},
		{"csrf only", csrfHeaders()},
		{"forged token", authHeaders("forged")},
		{"forged csrf", map[string]string{"X-CSRF-Token": "forged", "Authorization": "Bearer " + testTokenA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, "GET", "/chat/api/v1/room/room-1", nil, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.JSONEq(t, `{"error":"unauthorized","message":"Unauthorized"}`, string(body))
		})
	}
}

func TestCSRFTokenAndHealth(t *testing.T) {
	_, app := newTestModule(t, &mockDirectory{}, newMockIdentity())

	status, body := doRequest(t, app, "GET", "/chat/csrf-token", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"csrf_token":"`+testCSRF+`"}`, string(body))

	status, body = doRequest(t, app, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"healthy","details":{"module":"api","connections":0,"groups":0}}`, string(body))
}

func TestAccountLimiter(t *testing.T) {
	_, app := newTestModule(t, &mockDirectory{}, newMockIdentity())

	var status int
	for i := 0; i <= accountRateLimit; i++ {
		status, _ = doRequest(t, app, "POST", "/chat/api/v1/user/login", LoginRequest{UserHash: "short"}, csrfHeaders())
	}
	assert.Equal(t, http.StatusTooManyRequests, status)
}
