package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriter_WritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer fw.Close()

	if _, err := fw.Write([]byte("{\"msg\":\"hello\"}\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	name := "bastion-" + time.Now().Format("2006-01-02") + ".jsonl"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing written content: %q", data)
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()

	old := "bastion-" + time.Now().AddDate(0, 0, -30).Format("2006-01-02") + ".jsonl"
	recent := "bastion-" + time.Now().Format("2006-01-02") + ".jsonl"
	other := "notes.txt"

	for _, name := range []string{old, recent, other} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	Cleanup(dir, 7)

	if _, err := os.Stat(filepath.Join(dir, old)); !os.IsNotExist(err) {
		t.Error("old log file should have been removed")
	}
	if _, err := os.Stat(filepath.Join(dir, recent)); err != nil {
		t.Error("recent log file should have been kept")
	}
	if _, err := os.Stat(filepath.Join(dir, other)); err != nil {
		t.Error("non-log file should have been kept")
	}
}
