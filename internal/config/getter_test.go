package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("TSIO_TEST_STR", "configured")
	if got := GetEnvStr("TSIO_TEST_STR", "default"); got != "configured" {
		t.Fatalf("got %q, want %q", got, "configured")
	}

	if got := GetEnvStr("TSIO_TEST_STR_UNSET", "default"); got != "default" {
		t.Fatalf("got %q, want %q", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TSIO_TEST_INT", "42")
	if got := GetEnvInt("TSIO_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}

	t.Setenv("TSIO_TEST_INT_BAD", "not-a-number")
	if got := GetEnvInt("TSIO_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("got %d, want fallback 7 for unparsable value", got)
	}

	if got := GetEnvInt("TSIO_TEST_INT_UNSET", 7); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestGetEnvInt64(t *testing.T) {
	t.Setenv("TSIO_TEST_INT64", "1099511627776")
	if got := GetEnvInt64("TSIO_TEST_INT64", 0); got != 1099511627776 {
		t.Fatalf("got %d, want 1099511627776", got)
	}

	if got := GetEnvInt64("TSIO_TEST_INT64_UNSET", 5); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "yes": true, "TRUE": true,
		"false": false, "0": false, "no": false}

	for value, want := range cases {
		t.Setenv("TSIO_TEST_BOOL", value)
		if got := GetEnvBool("TSIO_TEST_BOOL", !want); got != want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", value, got, want)
		}
	}

	if got := GetEnvBool("TSIO_TEST_BOOL_UNSET", true); !got {
		t.Fatal("expected default true when unset")
	}

	t.Setenv("TSIO_TEST_BOOL_GARBLED", "maybe")
	if got := GetEnvBool("TSIO_TEST_BOOL_GARBLED", true); !got {
		t.Fatal("an unrecognized value should fall back to the default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TSIO_TEST_DURATION", "15m")
	if got := GetEnvDuration("TSIO_TEST_DURATION", time.Second); got != 15*time.Minute {
		t.Fatalf("got %v, want 15m", got)
	}

	if got := GetEnvDuration("TSIO_TEST_DURATION_UNSET", time.Second); got != time.Second {
		t.Fatalf("got %v, want 1s default", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "info": slog.LevelInfo,
		"warn": slog.LevelWarn, "warning": slog.LevelWarn, "error": slog.LevelError,
	}

	for value, want := range cases {
		t.Setenv("TSIO_TEST_LOG_LEVEL", value)
		if got := GetEnvLogLevel("TSIO_TEST_LOG_LEVEL", slog.LevelInfo); got != want {
			t.Errorf("GetEnvLogLevel(%q) = %v, want %v", value, got, want)
		}
	}

	if got := GetEnvLogLevel("TSIO_TEST_LOG_LEVEL_UNSET", slog.LevelWarn); got != slog.LevelWarn {
		t.Fatalf("got %v, want default warn", got)
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
		{"solo", []string{"solo"}},
	}

	for _, c := range cases {
		got := ParseCommaSeparatedList(c.input)
		if len(got) != len(c.want) {
			t.Errorf("ParseCommaSeparatedList(%q) = %v, want %v", c.input, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("ParseCommaSeparatedList(%q)[%d] = %q, want %q", c.input, i, got[i], c.want[i])
			}
		}
	}
}
