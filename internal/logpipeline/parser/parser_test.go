package parser

import "testing"

func TestParseJSON_RecognizedAndGenericFields(t *testing.T) {
	raw := []byte(`{"hostname":"host-a","process":"sshd","message":"login failed","user":"root"}`)
	entry, err := Parse(FormatJSON, "test", raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Hostname != "host-a" || entry.Process != "sshd" || entry.Message != "login failed" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	val, ok := entry.FieldValue("user")
	if !ok || val != "root" {
		t.Fatalf("expected generic field 'user'=root, got %q ok=%v", val, ok)
	}
}

func TestParseJSON_InvalidJSON(t *testing.T) {
	if _, err := Parse(FormatJSON, "test", []byte("not json")); err == nil {
		t.Fatal("expected invalid json to be rejected")
	}
}

func TestParseSyslog_ExtractsHostnameAndProcess(t *testing.T) {
	raw := []byte("<34>Jan 12 06:30:00 host-a sshd[1234]: Failed password for root")
	entry, err := Parse(FormatSyslog, "test", raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Hostname != "host-a" {
		t.Errorf("hostname = %q, want host-a", entry.Hostname)
	}
	if entry.Process != "sshd" {
		t.Errorf("process = %q, want sshd", entry.Process)
	}
	if entry.Message != "Failed password for root" {
		t.Errorf("message = %q", entry.Message)
	}
}

func TestParseSyslog_MalformedFallsBackToRawMessage(t *testing.T) {
	raw := []byte("this is not a syslog line at all")
	entry, err := Parse(FormatSyslog, "test", raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Message != string(raw) {
		t.Fatalf("expected fallback to raw message, got %q", entry.Message)
	}
}

func TestParse_RejectsOversizedLine(t *testing.T) {
	raw := make([]byte, maxLineBytes+1)
	if _, err := Parse(FormatJSON, "test", raw); err == nil {
		t.Fatal("expected oversized line to be rejected")
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	if _, err := Parse(Format("xml"), "test", []byte("<a/>")); err == nil {
		t.Fatal("expected unsupported format to be rejected")
	}
}
