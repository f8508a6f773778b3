package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testEntry(status string) Entry {
	return Entry{
		Excerpt:    "500 water purification units needed for flood zone 4",
		Severity:   "HIGH",
		Action:     "write_dispatch_log",
		Status:     status,
		PolicyHash: "sha256:abc",
	}
}

func TestChainFirstEntryUsesGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if err := c.Record(testEntry(StatusAllowed)); err != nil {
		t.Fatalf("record: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trail: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if e.PrevHash != GenesisHash {
		t.Errorf("expected genesis prev_hash %s, got %s", GenesisHash, e.PrevHash)
	}
}

func TestChainRecordStampsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if err := c.Record(testEntry(StatusBlocked)); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := Tail(path, 1)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if _, err := time.Parse(TimestampFormat, entries[0].Timestamp); err != nil {
		t.Errorf("timestamp %q does not parse: %v", entries[0].Timestamp, err)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.Record(testEntry(StatusAllowed)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	c.Close()

	result := Verify(path)
	if !result.Valid {
		t.Errorf("expected valid chain, got: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 5 {
		t.Errorf("expected 5 lines, got %d", result.Lines)
	}
}

func TestOpenRecoversChainTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c.Record(testEntry(StatusAllowed))
	c.Record(testEntry(StatusRouted))
	c.Close()

	// Reopen and append; the chain must continue, not restart at genesis.
	c2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	c2.Record(testEntry(StatusBlocked))
	c2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Errorf("chain broken after reopen: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 3 {
		t.Errorf("expected 3 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		c.Record(testEntry(StatusAllowed))
	}
	c.Close()

	// Flip the status on the middle line.
	data, _ := os.ReadFile(path)
	tampered := strings.Replace(string(data), StatusAllowed, StatusBlocked, 2)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("rewrite trail: %v", err)
	}

	result := Verify(path)
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
	if result.ErrorLine == 0 {
		t.Error("expected the broken line to be reported")
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "nope.jsonl"))
	if result.Valid {
		t.Error("missing file must not verify as valid")
	}
	if result.Error == "" {
		t.Error("expected an error message")
	}
}

func TestChainConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := c.Record(testEntry(StatusAllowed)); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	c.Close()

	result := Verify(path)
	if !result.Valid {
		t.Errorf("chain broken under concurrency: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 80 {
		t.Errorf("expected 80 lines, got %d", result.Lines)
	}
}

func TestTailReturnsLastEntriesOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		e := testEntry(StatusAllowed)
		e.Excerpt = fmt.Sprintf("entry %d", i)
		c.Record(e)
	}
	c.Close()

	entries, err := Tail(path, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Excerpt != "entry 3" || entries[1].Excerpt != "entry 4" {
		t.Errorf("expected entries 3 and 4, got %q and %q", entries[0].Excerpt, entries[1].Excerpt)
	}
}

func TestTailSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	line, _ := json.Marshal(testEntry(StatusAllowed))
	content := "not json\n" + string(line) + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write trail: %v", err)
	}

	entries, err := Tail(path, 10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 parseable entry, got %d", len(entries))
	}
}

func TestFormatEntriesEmpty(t *testing.T) {
	out := FormatEntries(nil)
	if !strings.Contains(out, "No entries") {
		t.Errorf("unexpected empty output: %q", out)
	}
}

func TestFormatEntriesColumns(t *testing.T) {
	e := testEntry(StatusBlocked)
	e.Timestamp = "2026-03-01T10:00:00.000Z"
	e.RuleID = "RULE:DIR_SCOPE"
	out := FormatEntries([]Entry{e})
	if !strings.Contains(out, "BLOCKED") {
		t.Errorf("output should contain the status: %q", out)
	}
	if !strings.Contains(out, "RULE:DIR_SCOPE") {
		t.Errorf("output should contain the rule ID: %q", out)
	}
}

// failingRecorder always errors, for Multi fan-out tests.
type failingRecorder struct{}

func (failingRecorder) Record(Entry) error { return errors.New("sink down") }

func TestMultiRecordsToAllSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	m := Multi(failingRecorder{}, c)
	err = m.Record(testEntry(StatusAllowed))
	if err == nil {
		t.Error("expected the failing sink's error to surface")
	}

	// The healthy sink must still have been written.
	f, _ := os.Open(path)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Errorf("expected 1 line in healthy sink, got %d", lines)
	}
}

func TestMultiNoSinksIsNoop(t *testing.T) {
	if err := Multi().Record(testEntry(StatusAllowed)); err != nil {
		t.Errorf("empty multi should be a no-op, got: %v", err)
	}
}
