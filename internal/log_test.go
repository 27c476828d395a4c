package internal

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"ERROR", LogLevelError},
		{"warn", LogLevelWarn},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
		{" debug ", LogLevelDebug},
		{"TRACE", LogLevelTrace},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := NewNopLogger().With("run", "test")
	l.Error("e %d", 1)
	l.Info("i")
	l.Trace("t")
	l.Sync()
	if l.level != LogLevelError {
		t.Errorf("Expected child to keep error level, got %v", l.level)
	}
}
