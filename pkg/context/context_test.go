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

package context

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromDefault(t *testing.T) {
	if LoggerFrom(Background()) != slog.Default() {
		t.Fatal("expected the default logger without one in the context")
	}
}

func TestWithSessionID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithSessionID(WithLogger(Background(), log), "session-1")
	LoggerFrom(ctx).Info("Connection opened")
	if !strings.Contains(buf.String(), "session=session-1") {
		t.Fatalf("expected session attribute in %q", buf.String())
	}
	buf.Reset()
	log.Info("unrelated")
	if strings.Contains(buf.String(), "session=") {
		t.Fatalf("parent logger was annotated: %q", buf.String())
	}
}
