package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	return []log.Event{
		{
			Timestamp: ts,
			SessionID: "3f2a9c1e-0000-4000-8000-000000000001",
			Direction: log.DirectionOut,
			Layer:     log.LayerCommand,
			Category:  log.CategoryMessage,
			Interface: "wlan0",
			Command: &log.CommandEvent{
				Op:       "ADD_NETWORK",
				SSID:     "HomeNet",
				Result:   log.ResultOK,
				Duration: 1500 * time.Microsecond,
			},
		},
		{
			Timestamp: ts.Add(time.Second),
			SessionID: "3f2a9c1e-0000-4000-8000-000000000001",
			Direction: log.DirectionIn,
			Layer:     log.LayerEvent,
			Category:  log.CategoryMessage,
			Notify:    &log.NotifyEvent{Kind: "STATE_CHANGED", State: "completed", Raw: "<3>CTRL-EVENT-CONNECTED"},
		},
		{
			Timestamp: ts.Add(2 * time.Second),
			SessionID: "3f2a9c1e-0000-4000-8000-000000000001",
			Layer:     log.LayerSession,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnect,
				OldState: "AWAITING_STATE",
				NewState: "COMPLETED",
			},
		},
		{
			Timestamp: ts.Add(3 * time.Second),
			Layer:     log.LayerHotspot,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerHotspot, Message: "dnsmasq exited"},
		},
	}
}

func TestViewFormatsEvents(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z [3f2a9c1e] OUT COMMAND ADD_NETWORK",
		"Result: OK (1.500ms)",
		`SSID: "HomeNet"`,
		"IN  EVENT STATE_CHANGED",
		"State: completed",
		"AWAITING_STATE -> COMPLETED",
		"[-] IN  HOTSPOT Error",
		"Message: dnsmasq exited",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestViewFiltersByLayer(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	layer := log.LayerSession
	var buf bytes.Buffer
	if err := RunView(path, log.Filter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "SESSION State") {
		t.Errorf("expected session event, got:\n%s", output)
	}
	if strings.Contains(output, "ADD_NETWORK") {
		t.Error("command event should be filtered out")
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		f, err := FilterOptions{
			SessionID: "abc",
			Layer:     "HOTSPOT",
			Direction: "in",
			Category:  "error",
			TimeStart: "2026-01-28T10:00:00Z",
		}.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if f.SessionID != "abc" || *f.Layer != log.LayerHotspot || *f.Direction != log.DirectionIn || *f.Category != log.CategoryError {
			t.Errorf("unexpected filter: %+v", f)
		}
		if f.TimeStart == nil || f.TimeEnd != nil {
			t.Error("expected only a start time")
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, opts := range []FilterOptions{
			{Layer: "wire"},
			{Direction: "sideways"},
			{Category: "control"},
			{TimeEnd: "yesterday"},
		} {
			if _, err := opts.Build(); err == nil {
				t.Errorf("expected error for %+v", opts)
			}
		}
	})
}

func TestFilterBySession(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.wlog")

	n, err := RunFilter(path, outPath, FilterOptions{SessionID: "3f2a9c1e-0000-4000-8000-000000000001"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}

	stats, err := CollectStats(outPath)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 3 {
		t.Errorf("filtered file has %d events, want 3", stats.TotalEvents)
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 4 {
		t.Errorf("expected 4 lines, got %d", lines)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(rows))
	}
	if rows[0][1] != "session_id" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][6] != "ADD_NETWORK" || rows[1][7] != "OK" {
		t.Errorf("unexpected command row: %v", rows[1])
	}
	if rows[4][8] != "dnsmasq exited" {
		t.Errorf("unexpected error row: %v", rows[4])
	}

	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 4",
		"COMMAND:",
		"HOTSPOT:",
		"ADD_NETWORK:",
		"Sessions: 1",
		"[3f2a9c1e] 3 events",
		"Connects: completed=1 failed=0 timed_out=0",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
