// Package testutil provides fakes shared by the turma test suites.
package testutil

// Safe fake credentials. They are obviously fake so secret scanners ignore them.
const (
	FakeGeminiKeyA  = "test-gemini-key-a"
	FakeGeminiKeyB  = "test-gemini-key-b"
	FakeBridgeToken = "test-bridge-token"
)
