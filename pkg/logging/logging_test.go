/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tc := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"TRACE", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"fatal", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tc {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestNewLoggerTo(t *testing.T) {
	t.Parallel()
	t.Run("FiltersBelowLevel", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLoggerTo(&buf, "warn")
		log.Info("hidden")
		log.Warn("shown", "key", "value")
		out := buf.String()
		if strings.Contains(out, "hidden") || !strings.Contains(out, "key=value") {
			t.Fatalf("unexpected output:\n%s", out)
		}
	})
	t.Run("Silent", func(t *testing.T) {
		var buf bytes.Buffer
		NewLoggerTo(&buf, "silent").Error("nothing")
		if buf.Len() != 0 {
			t.Fatalf("expected no output, got:\n%s", buf.String())
		}
	})
}

func TestIsValidLevel(t *testing.T) {
	t.Parallel()
	for _, lvl := range []string{"", "silent", "SILENT", "debug", "error"} {
		if !IsValidLevel(lvl) {
			t.Fatalf("expected %q to be valid", lvl)
		}
	}
	if IsValidLevel("loud") {
		t.Fatal("expected loud to be invalid")
	}
}
