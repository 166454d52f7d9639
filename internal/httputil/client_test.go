package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestStandardClientTimeout(t *testing.T) {
	client := NewStandardClient(5 * time.Second)
	if client.Client.Timeout != 5*time.Second {
		t.Errorf("got timeout %v, want 5s", client.Client.Timeout)
	}
}

func TestMockHTTPClientQueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"result": "success"}`)
	mock.AddResponse(http.StatusNotFound, "not found")

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"result": "success"}` {
		t.Errorf("got body %q", string(body))
	}

	resp2, err := mock.Do(req)
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}

	if mock.RequestCount() != 2 {
		t.Errorf("got %d requests, want 2", mock.RequestCount())
	}
}

func TestMockHTTPClientCapturesBody(t *testing.T) {
	mock := NewMockHTTPClient()

	req, _ := http.NewRequest(http.MethodPost, "http://example.com/api", strings.NewReader(`{"name": "test"}`))
	if _, err := mock.Do(req); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if got := string(mock.RequestBody(0)); got != `{"name": "test"}` {
		t.Errorf("got captured body %q", got)
	}
	if mock.RequestBody(5) != nil {
		t.Error("out-of-range body should be nil")
	}
}

func TestMockHTTPClientError(t *testing.T) {
	mock := NewMockHTTPClient()
	wantErr := errors.New("connection refused")
	mock.AddError(wantErr)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	if _, err := mock.Do(req); !errors.Is(err, wantErr) {
		t.Errorf("got err %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClientExhaustedReturnsEmpty200(t *testing.T) {
	mock := NewMockHTTPClient()

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}

func TestMockHTTPClientDoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("custom")),
			Header:     make(http.Header),
		}, nil
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("got status %d, want 418", resp.StatusCode)
	}
}

func TestMockHTTPClientReset(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "body")
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	if _, err := mock.Do(req); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mock.Reset()
	if mock.RequestCount() != 0 {
		t.Errorf("got %d requests after reset, want 0", mock.RequestCount())
	}
}
