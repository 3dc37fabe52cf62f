package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a goroutine-safe bytes.Buffer for capturing log output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func summaries(t *testing.T, buf *syncBuffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("Unmarshal log line %q: %v", sc.Text(), err)
		}
		if entry["msg"] == "event_summary" {
			out = append(out, entry)
		}
	}
	return out
}

func TestAggregatorRecord(t *testing.T) {
	buf := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	agg := NewAggregator(logger, 1)
	agg.Start()

	for i := 0; i < 5; i++ {
		agg.Record(CompQuery, "search", slog.Int("results", i))
	}
	agg.Record(CompSync, "tab_indexed")

	// Wait past the 1-second flush interval.
	time.Sleep(1500 * time.Millisecond)
	agg.Stop()

	entries := summaries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d: %v", len(entries), entries)
	}

	byKey := map[string]map[string]any{}
	for _, e := range entries {
		byKey[e["component"].(string)+"/"+e["event"].(string)] = e
	}

	search := byKey[CompQuery+"/search"]
	if search == nil {
		t.Fatal("Missing query/search summary")
	}
	if search["count"].(float64) != 5 {
		t.Errorf("search count = %v, want 5", search["count"])
	}
	// Fields keep the last-seen value.
	if search["results"].(float64) != 4 {
		t.Errorf("search results = %v, want 4", search["results"])
	}

	indexed := byKey[CompSync+"/tab_indexed"]
	if indexed == nil || indexed["count"].(float64) != 1 {
		t.Errorf("tab_indexed summary: %v", indexed)
	}
}

func TestAggregatorNilLogger(t *testing.T) {
	agg := NewAggregator(nil, 1)
	agg.Start()

	// Must not panic.
	agg.Record(CompBridge, "event_dropped")
	agg.Record(CompBridge, "event_dropped")

	agg.Stop()
}

func TestAggregatorStopFlushes(t *testing.T) {
	buf := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	agg := NewAggregator(logger, 600) // interval far in the future
	agg.Start()

	agg.Record(CompStore, "recency_touch")
	agg.Stop()

	entries := summaries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected Stop to flush pending entries, got %d", len(entries))
	}
	if entries[0]["event"] != "recency_touch" {
		t.Errorf("Unexpected summary: %v", entries[0])
	}
}
