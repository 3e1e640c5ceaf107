package safety

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wayfarer/internal/llm"
)

func TestGate_ScreenInput_Pass(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Classifications[llm.TaskSafetyInput] = &llm.Classification{
		Label:  "safe",
		Fields: map[string]string{"concern_type": "safe"},
	}

	g := NewGate(mock)
	v := g.ScreenInput(context.Background(), "plan a trip to Dubai")
	assert.True(t, v.Safe)
}

func TestGate_ScreenInput_FailRecordsIncident(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Classifications[llm.TaskSafetyInput] = &llm.Classification{
		Label:     "unsafe",
		Rationale: "smuggling request",
		Fields:    map[string]string{"concern_type": "illegal"},
	}

	path := filepath.Join(t.TempDir(), "incidents.jsonl")
	g := NewGate(mock, WithIncidentLog(NewFileIncidentLog(path)))

	v := g.ScreenInput(context.Background(), "how do I smuggle things")
	require.False(t, v.Safe)
	assert.Equal(t, "illegal", v.Category)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var incident Incident
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &incident))
	assert.Equal(t, StageInput, incident.Stage)
	assert.Equal(t, "illegal", incident.Category)
	assert.NotEmpty(t, incident.ID)
	// Raw content never lands in the log, only the truncated hash.
	assert.NotContains(t, strings.ToLower(incident.ContentHash), "smuggle")
	assert.Len(t, incident.ContentHash, 16)
}

func TestGate_ScreenInput_ClassifierFailureFailsOpen(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.ClassifyErr = errors.New("provider down")

	g := NewGate(mock)
	v := g.ScreenInput(context.Background(), "plan a trip")

	assert.True(t, v.Safe)
	assert.Equal(t, "unknown", v.Category)
}

func TestGate_ScreenInput_EmptyInput(t *testing.T) {
	g := NewGate(llm.NewMockProvider())
	v := g.ScreenInput(context.Background(), "")
	assert.True(t, v.Safe)
}

func TestGate_ValidateOutput(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Classifications[llm.TaskSafetyOutput] = &llm.Classification{
		Label:  "unsafe",
		Fields: map[string]string{"concern_type": "unsafe_advice"},
	}

	g := NewGate(mock)
	v := g.ValidateOutput(context.Background(), "go hiking in the minefield", "trip advice")
	assert.False(t, v.Safe)
	assert.Equal(t, "unsafe_advice", v.Category)
}

func TestGate_AssessDestination(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Classifications[llm.TaskDestination] = &llm.Classification{Label: "sensitive"}

	g := NewGate(mock)
	assert.True(t, g.AssessDestination(context.Background(), "active war zone"))
	assert.False(t, g.AssessDestination(context.Background(), ""))
}

func TestRefusalFor(t *testing.T) {
	assert.Contains(t, RefusalFor("illegal"), "illegal activities")
	assert.Equal(t, defaultRefusal, RefusalFor("never-seen"))
}

func TestHashContent_Stable(t *testing.T) {
	assert.Equal(t, HashContent("abc"), HashContent("abc"))
	assert.NotEqual(t, HashContent("abc"), HashContent("abd"))
}
