package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRunnerLanguage(t *testing.T) {
	tests := map[string]string{
		"javascript": "nodejs",
		"python":     "python3",
		"java":       "java",
		"csharp":     "csharp",
		"ruby":       "ruby",
		"":           "",
	}
	for in, want := range tests {
		if got := RunnerLanguage(in); got != want {
			t.Errorf("RunnerLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExecuteSuccess(t *testing.T) {
	var got jdoodleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":"hello\n","statusCode":200,"memory":"1024","cpuTime":"0.01"}`))
	}))
	defer srv.Close()

	j := NewJDoodle(srv.URL, "id", "secret", time.Second)
	result, err := j.Execute(context.Background(), "python", "print('hello')")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Output != "hello\n" || result.StatusCode != 200 {
		t.Errorf("Unexpected result: %+v", result)
	}
	want := jdoodleRequest{
		Script:       "print('hello')",
		Language:     "python3",
		VersionIndex: "0",
		ClientID:     "id",
		ClientSecret: "secret",
	}
	if got != want {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestExecuteRunnerErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Invalid language","statusCode":400}`))
	}))
	defer srv.Close()

	j := NewJDoodle(srv.URL, "", "", time.Second)
	result, err := j.Execute(context.Background(), "klingon", "")
	if err != nil {
		t.Fatalf("Error payloads are relayed, not failed: %v", err)
	}
	if result.Error != "Invalid language" {
		t.Errorf("Expected relayed error, got %+v", result)
	}
}

func TestExecuteRelaysRunnerBody(t *testing.T) {
	body := `{"output":"","statusCode":200,"memory":"1","cpuTime":"0.1","isExecutionSuccess":true,"isCompiled":true}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	j := NewJDoodle(srv.URL, "", "", time.Second)
	result, err := j.Execute(context.Background(), "python", "pass")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}

	var relayed map[string]any
	if err := json.Unmarshal(encoded, &relayed); err != nil {
		t.Fatalf("Relayed body is not JSON: %v", err)
	}
	if output, ok := relayed["output"]; !ok || output != "" {
		t.Errorf("Expected empty output key, got %v", relayed)
	}
	if relayed["isExecutionSuccess"] != true || relayed["isCompiled"] != true {
		t.Errorf("Runner fields should be relayed, got %v", relayed)
	}
}

func TestResultWithoutRunnerBody(t *testing.T) {
	encoded, err := json.Marshal(&Result{StatusCode: 200})
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}
	if string(encoded) != `{"output":"","statusCode":200}` {
		t.Errorf("Unexpected encoding: %s", encoded)
	}
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			j := NewJDoodle(srv.URL, "", "", 50*time.Millisecond)
			_, err := j.Execute(context.Background(), "javascript", "1")
			if !errors.Is(err, ErrExecutorFailure) {
				t.Errorf("Expected ErrExecutorFailure, got %v", err)
			}
		})
	}
}

func TestDefaultEndpoint(t *testing.T) {
	j := NewJDoodle("", "", "", time.Second)
	if j.endpoint != DefaultEndpoint {
		t.Errorf("Expected default endpoint, got %s", j.endpoint)
	}
}
