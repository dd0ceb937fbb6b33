package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-10-10T10:10:10Z", true},
		{"2024-10-10T12:10:10+02:00", true},
		{strconv.FormatInt(want.Unix(), 10), true},
		{"", false},
		{"yesterday", false},
		{"-5", false},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.in)
		if ok != tt.ok {
			t.Fatalf("ParseTime(%q) ok = %v", tt.in, ok)
		}
		if ok && !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %v", tt.in, got)
		}
	}
}

func TestParseDefaults(t *testing.T) {
	def := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
	if got := ParseIntDefault(" 42 ", 7); got != 42 {
		t.Fatalf("ParseIntDefault = %d", got)
	}
	if got := ParseIntDefault("x", 7); got != 7 {
		t.Fatalf("ParseIntDefault = %d", got)
	}
}

func TestAlignRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	to := time.Date(2024, 1, 1, 11, 59, 59, 0, time.UTC)
	f, e := AlignRange(from, to, 5*time.Minute)
	if f.Minute() != 5 || e.Minute() != 55 || e.Second() != 0 {
		t.Fatalf("AlignRange = %v %v", f, e)
	}
}
