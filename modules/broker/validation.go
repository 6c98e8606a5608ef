package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/directory"
)

// Form types accepted by the validator.
const (
	FormCreateUser  = "create-user"
	FormCreateRoom  = "create-room"
	FormChatMessage = "chat-message"
)

const genericFormFailure = "Invalid form submission"

// ValidationRequest is the form-validation request frame.
type ValidationRequest struct {
	Type     string          `json:"type"`
	FormData json.RawMessage `json:"form_data"`
}

// ValidationResult is the form-validation response frame.
type ValidationResult struct {
	FormData         json.RawMessage `json:"form_data"`
	ValidationFailed bool            `json:"validation_failed"`
	FailureReason    string          `json:"failure_reason"`
}

// Form holds the fields any form type may carry.
type Form struct {
	UserName string `json:"user_name"`
	RoomName string `json:"room_name"`
	UserID   int64  `json:"user_id"`
	Content  string `json:"content"`
}

// Rule checks one condition of a form. It returns a non-empty reason when
// the form fails; err is reserved for lookup failures.
type Rule struct {
	Name  string
	Check func(ctx context.Context, form Form) (reason string, err error)
}

// Validator evaluates ordered rule pipelines, stopping at the first failure.
type Validator struct {
	directory Directory
	pipelines map[string][]Rule
}

// NewValidator creates a Validator with the chat form rules.
func NewValidator(dir Directory) *Validator {
	v := &Validator{directory: dir}
	v.pipelines = map[string][]Rule{
		FormCreateUser: {
			{Name: "user-name-present", Check: nonEmpty("User name", func(f Form) string { return f.UserName })},
			{Name: "user-name-length", Check: maxLength("User name", domain.NameLength, func(f Form) string { return f.UserName })},
			{Name: "user-name-available", Check: v.userNameAvailable},
		},
		FormCreateRoom: {
			{Name: "room-name-present", Check: nonEmpty("Room name", func(f Form) string { return f.RoomName })},
			{Name: "room-name-length", Check: maxLength("Room name", domain.NameLength, func(f Form) string { return f.RoomName })},
			{Name: "room-name-unused", Check: v.roomNameUnused},
		},
		FormChatMessage: {
			{Name: "content-length", Check: maxLength("Message", domain.ContentLength, func(f Form) string { return f.Content })},
		},
	}
	return v
}

// ValidateForm runs the pipeline of formType and returns the first failure
// reason, or "" when every rule passes.
func (v *Validator) ValidateForm(ctx context.Context, formType string, form Form) (string, error) {
	rules, ok := v.pipelines[formType]
	if !ok {
		return genericFormFailure, nil
	}
	for _, rule := range rules {
		reason, err := rule.Check(ctx, form)
		if err != nil {
			return "", fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if reason != "" {
			return reason, nil
		}
	}
	return "", nil
}

// Validate answers one form-validation request frame.
// Malformed frames return an *InvalidRequestError.
func (v *Validator) Validate(ctx context.Context, payload []byte) (ValidationResult, error) {
	var req ValidationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ValidationResult{}, invalid("malformed validation request")
	}

	result := ValidationResult{FormData: req.FormData}
	if result.FormData == nil {
		result.FormData = json.RawMessage("null")
	}

	var form Form
	trimmed := bytes.TrimSpace(req.FormData)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &form) != nil {
		result.ValidationFailed = true
		result.FailureReason = genericFormFailure
		return result, nil
	}

	reason, err := v.ValidateForm(ctx, req.Type, form)
	if err != nil {
		return ValidationResult{}, err
	}
	result.ValidationFailed = reason != ""
	result.FailureReason = reason
	return result, nil
}

func (v *Validator) userNameAvailable(ctx context.Context, form Form) (string, error) {
	resp, err := v.directory.LookupUser(ctx, directory.LookupUserRequest{UserName: form.UserName})
	if err != nil {
		return "", err
	}
	if resp.Found {
		return fmt.Sprintf("User name %s is already taken", form.UserName), nil
	}
	return "", nil
}

func (v *Validator) roomNameUnused(ctx context.Context, form Form) (string, error) {
	if form.UserID <= 0 {
		return genericFormFailure, nil
	}
	resp, err := v.directory.LookupRoom(ctx, directory.LookupRoomRequest{
		RoomName: form.RoomName,
		OwnerID:  form.UserID,
	})
	if err != nil {
		return "", err
	}
	if resp.Found {
		return fmt.Sprintf("You already own a room named %s", form.RoomName), nil
	}
	return "", nil
}

func nonEmpty(label string, field func(Form) string) func(context.Context, Form) (string, error) {
	return func(_ context.Context, f Form) (string, error) {
		if field(f) == "" {
			return label + " cannot be empty", nil
		}
		return "", nil
	}
}

func maxLength(label string, limit int, field func(Form) string) func(context.Context, Form) (string, error) {
	return func(_ context.Context, f Form) (string, error) {
		if utf8.RuneCountInString(field(f)) > limit {
			return fmt.Sprintf("%s cannot be longer than %d characters", label, limit), nil
		}
		return "", nil
	}
}
