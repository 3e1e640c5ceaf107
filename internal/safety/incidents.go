package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Stage identifies which gate stage recorded an incident.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// IncidentLog is the append-only sink for failed verdicts. Implementations
// must never store raw content, only a truncated hash.
type IncidentLog interface {
	Record(stage Stage, category, content string)
}

// NopIncidentLog drops incidents.
type NopIncidentLog struct{}

// Record implements IncidentLog.
func (NopIncidentLog) Record(Stage, string, string) {}

// Incident is one JSONL record.
type Incident struct {
	ID          string    `json:"id"`
	Stage       Stage     `json:"stage"`
	Category    string    `json:"category"`
	ContentHash string    `json:"content_hash"` // truncated sha256, never the content
	Timestamp   time.Time `json:"timestamp"`
}

// FileIncidentLog appends incidents to a JSONL file.
type FileIncidentLog struct {
	mu   sync.Mutex
	path string
}

// NewFileIncidentLog creates a JSONL incident log at path.
func NewFileIncidentLog(path string) *FileIncidentLog {
	return &FileIncidentLog{path: path}
}

// Record appends one incident. Write failures are logged, not propagated:
// the incident log must never fail a turn.
func (l *FileIncidentLog) Record(stage Stage, category, content string) {
	incident := Incident{
		ID:          uuid.NewString(),
		Stage:       stage,
		Category:    category,
		ContentHash: HashContent(content),
		Timestamp:   time.Now().UTC(),
	}

	line, err := json.Marshal(incident)
	if err != nil {
		log.Error().Err(err).Str("component", "safety").Msg("marshal incident")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		log.Error().Err(err).Str("component", "safety").Msg("open incident log")
		return
	}
	defer f.Close()

	_, _ = f.Write(append(line, '\n'))
}

// HashContent returns the truncated sha256 of content, the only form in
// which flagged content is retained.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}
