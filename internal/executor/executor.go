package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultEndpoint = "https://api.jdoodle.com/v1/execute"

var ErrExecutorFailure = errors.New("code execution failed")

// Maps editor language tags to the runner's identifiers. Tags not listed
// are passed through unchanged.
var languageVersionMap = map[string]string{
	"javascript": "nodejs",
	"python":     "python3",
	"java":       "java",
	"csharp":     "csharp",
}

// Result holds the fields the server reads from a runner response.
// Marshalling a decoded Result yields the runner's body unchanged.
type Result struct {
	Output     string `json:"output"`
	StatusCode int    `json:"statusCode,omitempty"`
	Memory     string `json:"memory,omitempty"`
	CPUTime    string `json:"cpuTime,omitempty"`
	Error      string `json:"error,omitempty"`

	raw json.RawMessage
}

func (r Result) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type fields Result
	return json.Marshal(fields(r))
}

type Executor interface {
	Execute(ctx context.Context, language, source string) (*Result, error)
}

func RunnerLanguage(language string) string {
	if mapped, ok := languageVersionMap[language]; ok {
		return mapped
	}
	return language
}

// JDoodle runs code through a JDoodle-compatible HTTP API
type JDoodle struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewJDoodle(endpoint, clientID, clientSecret string, timeout time.Duration) *JDoodle {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &JDoodle{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type jdoodleRequest struct {
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

func (j *JDoodle) Execute(ctx context.Context, language, source string) (*Result, error) {
	body, err := json.Marshal(jdoodleRequest{
		Script:       source,
		Language:     RunnerLanguage(language),
		VersionIndex: "0",
		ClientID:     j.clientID,
		ClientSecret: j.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutorFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExecutorFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: runner returned %d: %s", ErrExecutorFailure, resp.StatusCode, bytes.TrimSpace(data))
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExecutorFailure, err)
	}
	result.raw = json.RawMessage(data)
	return &result, nil
}
