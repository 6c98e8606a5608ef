package api

// CreateUserRequest is the API request to create a user.
type CreateUserRequest struct {
	UserName string `json:"user_name"`
}

// CreateUserResponse carries the login hash of a new user. The hash is
// only ever returned here.
type CreateUserResponse struct {
	UserName string `json:"user_name"`
	UserHash string `json:"user_hash"`
}

// LoginRequest is the API request to exchange a login hash for a token.
type LoginRequest struct {
	UserHash string `json:"user_hash"`
}

// LoginResponse is the API response for a successful login.
type LoginResponse struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	UserToken string `json:"user_token"`
}

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	RoomName string `json:"room_name"`
}

// RoomResponse is the API response for a room.
type RoomResponse struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	OwnerID  int64  `json:"owner_id,omitempty"`
}

// MemberResponse is one entry of a room member listing.
type MemberResponse struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// CSRFResponse carries a fresh anti-forgery token.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
