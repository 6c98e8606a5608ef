package identity

// IssueTokenRequest is the request to issue an identity token.
type IssueTokenRequest struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// IssueTokenResponse carries a signed identity token.
type IssueTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// ValidateTokenRequest is the request to validate an identity token.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse reports the identity carried by a token.
type ValidateTokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   int64  `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IssueCSRFRequest is the request to issue an anti-forgery token.
type IssueCSRFRequest struct{}

// IssueCSRFResponse carries a signed anti-forgery token.
type IssueCSRFResponse struct {
	Token string `json:"token"`
}

// ValidateCSRFRequest is the request to validate an anti-forgery token.
type ValidateCSRFRequest struct {
	Token string `json:"token"`
}

// ValidateCSRFResponse reports whether an anti-forgery token is acceptable.
type ValidateCSRFResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
