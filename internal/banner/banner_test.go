package banner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alekspetrov/turma/internal/health"
)

func TestStartup(t *testing.T) {
	var buf bytes.Buffer
	Startup(&buf, Info{
		Version: "1.2.3",
		Bridge:  "ws://127.0.0.1:8787/bridge",
		Store:   "sqlite",
		Checks: []health.Check{
			{Name: "store", Status: health.StatusOK},
			{Name: "ai", Status: health.StatusDisabled, Message: "no credentials"},
		},
	})

	out := buf.String()
	for _, want := range []string{"TURMA v1.2.3", "ws://127.0.0.1:8787/bridge", "disabled", "✓ store", "· ai (no credentials)"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestPrintWithVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintWithVersion(&buf, "0.1.0")
	if !strings.Contains(buf.String(), "v0.1.0") || !strings.Contains(buf.String(), Tagline) {
		t.Errorf("output = %q", buf.String())
	}
}
