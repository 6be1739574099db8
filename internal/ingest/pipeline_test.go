package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/dedup"
	"github.com/snarg/zmeta/internal/metrics"
	"github.com/snarg/zmeta/internal/rules"
)

type fakeHub struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeHub) Broadcast(message string) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
}

func (f *fakeHub) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}

type fakeRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeRecorder) Enqueue(line string) {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.mu.Unlock()
}

func newTestPipeline(t *testing.T, ruleYAML string) (*Pipeline, *fakeHub, *fakeRecorder) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(ruleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := rules.NewEngine(path)
	if err := engine.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	h := &fakeHub{}
	rec := &fakeRecorder{}
	p := New(h, rec, engine, dedup.New(0, 0), metrics.New(), zerolog.Nop())
	return p, h, rec
}

const nativeRFPayload = `{
  "timestamp": "2026-07-31T12:00:00Z",
  "sensor_id": "rf-1",
  "modality": "rf",
  "location": {"lat": 35.2714, "lon": -78.6376},
  "data": {"type": "rf_detection", "value": {"frequency_hz": 915000000}},
  "source_format": "native",
  "schema_version": "1.0"
}`

func TestIngestNativePayloadBroadcastsAndRecords(t *testing.T) {
	p, h, rec := newTestPipeline(t, "rules: []\n")

	evt, err := p.Ingest([]byte(nativeRFPayload), "http")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if evt.SensorID != "rf-1" {
		t.Errorf("SensorID = %q, want rf-1", evt.SensorID)
	}
	if evt.Sequence == nil {
		t.Fatal("expected sequence to be assigned")
	}

	if len(h.all()) != 1 {
		t.Errorf("broadcast messages = %d, want 1", len(h.all()))
	}
	rec.mu.Lock()
	n := len(rec.lines)
	rec.mu.Unlock()
	if n != 1 {
		t.Errorf("recorded lines = %d, want 1", n)
	}
}

func TestIngestAdaptsMHzPayloadAndAssignsSequence(t *testing.T) {
	p, _, rec := newTestPipeline(t, "rules: []\n")

	// A simulated RF payload in MHz: no schema_version, scalar value. Strict
	// validation rejects it, the rf-mhz adapter normalizes it.
	payload := `{"timestamp":"2025-01-01T00:00:00Z","sensor_id":"s1","modality":"rf",
		"location":{"lat":42.0,"lon":-71.0},
		"data":{"type":"frequency","value":915.2,"units":"MHz"},
		"source_format":"simulated_json_v1"}`

	evt, err := p.Ingest([]byte(payload), "http")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if evt.Sequence == nil || *evt.Sequence != 1 {
		t.Errorf("Sequence = %v, want 1 for the first accepted event", evt.Sequence)
	}
	if evt.SchemaVersion != "1.0" {
		t.Errorf("SchemaVersion = %q, want 1.0", evt.SchemaVersion)
	}

	rec.mu.Lock()
	lines := append([]string(nil), rec.lines...)
	rec.mu.Unlock()
	if len(lines) != 1 {
		t.Fatalf("recorded lines = %d, want 1", len(lines))
	}
	if !contains(lines[0], `"frequency_hz":915200000`) {
		t.Errorf("recorded line = %q, want frequency_hz converted to Hz", lines[0])
	}
}

func TestIngestInvalidPayloadIsDropped(t *testing.T) {
	p, h, _ := newTestPipeline(t, "rules: []\n")

	_, err := p.Ingest([]byte(`{"garbage": true}`), "udp")
	if err == nil {
		t.Fatal("expected error for unrecognized payload")
	}
	if len(h.all()) != 0 {
		t.Errorf("expected no broadcast for a dropped payload, got %d", len(h.all()))
	}
}

const matchingRuleYAML = `
rules:
  - name: rf_strong_signal
    severity: warn
    message: "RF in ISM band"
    conditions:
      - field: data.value.frequency_hz
        between: [902000000, 928000000]
`

func TestIngestMatchingRuleBroadcastsAlert(t *testing.T) {
	p, h, _ := newTestPipeline(t, matchingRuleYAML)

	if _, err := p.Ingest([]byte(nativeRFPayload), "udp"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	msgs := h.all()
	if len(msgs) != 2 {
		t.Fatalf("broadcast messages = %d, want 2 (event + alert)", len(msgs))
	}
	if !contains(msgs[1], `"type":"alert"`) {
		t.Errorf("second broadcast = %q, want an alert frame", msgs[1])
	}
}

func TestIngestDuplicateAlertSuppressedWithinTTL(t *testing.T) {
	p, h, _ := newTestPipeline(t, matchingRuleYAML)

	if _, err := p.Ingest([]byte(nativeRFPayload), "udp"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := p.Ingest([]byte(nativeRFPayload), "udp"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	var alertCount int
	for _, m := range h.all() {
		if contains(m, `"type":"alert"`) {
			alertCount++
		}
	}
	if alertCount != 1 {
		t.Errorf("alert broadcasts = %d, want 1 (second suppressed by dedup)", alertCount)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
