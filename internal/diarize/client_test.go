package diarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStartJob(t *testing.T) {
	var gotAuth string
	var gotReq jobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != jobsPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(jobResponse{JobID: "job-42"})
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{
		BaseURL:         srv.URL,
		APIKey:          "sekrit",
		CallbackBaseURL: "https://beal.example.com",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	jobID, err := c.StartJob(context.Background(), "rec-1", "https://cdn.example.com/rec-1.mp3")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if jobID != "job-42" {
		t.Errorf("job id = %q, want job-42", jobID)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.AudioURL != "https://cdn.example.com/rec-1.mp3" {
		t.Errorf("audio url = %q", gotReq.AudioURL)
	}
	want := "https://beal.example.com/api/recordings/rec-1/diarization"
	if gotReq.CallbackURL != want {
		t.Errorf("callback url = %q, want %q", gotReq.CallbackURL, want)
	}
}

func TestStartJob_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.StartJob(context.Background(), "rec-1", "https://cdn.example.com/a.mp3"); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestStartJob_MissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.StartJob(context.Background(), "rec-1", "https://cdn.example.com/a.mp3"); err == nil {
		t.Fatal("expected error when provider omits job id")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
