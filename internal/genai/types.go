// Package genai fronts the generative AI backend with credential and model
// rotation, failure cooldowns and bounded retries.
package genai

import "context"

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one conversation turn.
type Message struct {
	Role Role
	Text string
}

// FunctionDecl declares a function the model may call.
type FunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema
}

// Request is one generation request.
type Request struct {
	System    string
	Messages  []Message
	Functions []FunctionDecl
}

// FunctionCall is a function invocation chosen by the model.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Response is a classified backend answer: Call, when set, takes precedence
// over Text.
type Response struct {
	Text  string
	Call  *FunctionCall
	Model string
	// Credential is the label of the credential that answered.
	Credential string
}

// Credential is one API key.
type Credential struct {
	Label string `yaml:"label"`
	Key   string `yaml:"key"`
}

// Backend performs a single generation attempt.
type Backend interface {
	Generate(ctx context.Context, cred Credential, model string, req *Request) (*Response, error)
}
