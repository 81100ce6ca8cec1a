package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"

	"codesync/internal/identity"
)

func TestUploadBlobSendsCompressedPayload(t *testing.T) {
	payload := []byte("file content to upload")
	id := identity.HashBytes(payload)

	var gotPath, gotAuth, gotEncoding string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.UploadBlob(context.Background(), "tok-123", id, payload); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotPath != "/v1/blobs/"+id.String() {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	if gotEncoding != "zstd" {
		t.Errorf("content encoding: got %q", gotEncoding)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()
	decoded, err := decoder.DecodeAll(gotBody, nil)
	if err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Errorf("payload round trip: got %q", decoded)
	}
}

func TestUploadBlobDuplicateIsAcknowledged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.UploadBlob(context.Background(), "tok", identity.HashBytes([]byte("dup")), []byte("dup"))
	if err != nil {
		t.Fatalf("duplicate upload should be a no-op, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantAuth  bool
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"server error", http.StatusInternalServerError, false, true},
		{"bad gateway", http.StatusBadGateway, false, true},
		{"rate limited", http.StatusTooManyRequests, false, true},
		{"payload rejected", http.StatusUnprocessableEntity, false, false},
		{"bad request", http.StatusBadRequest, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			err := client.UploadBlob(context.Background(), "tok", identity.HashBytes([]byte("x")), []byte("x"))
			if err == nil {
				t.Fatal("expected error")
			}

			var authErr *AuthError
			if got := errors.As(err, &authErr); got != tc.wantAuth {
				t.Errorf("AuthError: got %v, want %v (err: %v)", got, tc.wantAuth, err)
			}
			if !tc.wantAuth {
				if got := IsTransient(err); got != tc.transient {
					t.Errorf("IsTransient: got %v, want %v (err: %v)", got, tc.transient, err)
				}
			}
		})
	}
}

func TestErrorBodyDecoded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"invalid_payload","error":"blob exceeds size limit"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.UploadBlob(context.Background(), "tok", identity.HashBytes([]byte("x")), []byte("x"))

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.Message != "invalid_payload: blob exceeds size limit" {
		t.Errorf("message: got %q", te.Message)
	}
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/token" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"next","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.AccessToken != "fresh" || resp.RefreshToken != "next" || resp.ExpiresIn != 3600 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRefreshRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Refresh(context.Background(), "revoked")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	// Reserve a port and close it so the dial fails fast.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL)
	err := client.UploadBlob(context.Background(), "tok", identity.HashBytes([]byte("x")), []byte("x"))
	if !IsTransient(err) {
		t.Fatalf("connection failure should be transient, got %v", err)
	}
}
