package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "rules.list", time.Time{}, bytes.NewReader(data))
	}))
}

func TestRanged_Reconstruction(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	ts := rangeServer(t, data)
	defer ts.Close()

	for _, threads := range []int{1, 3, 7, 50, 250} {
		got, err := Ranged(context.Background(), ts.URL, threads, Options{Client: ts.Client()})
		if err != nil {
			t.Fatalf("threads=%d: %v", threads, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("threads=%d: reassembled bytes differ from source", threads)
		}
	}
}

func TestRanged_ThreadsExceedSize(t *testing.T) {
	data := []byte("tiny")
	ts := rangeServer(t, data)
	defer ts.Close()

	got, err := Ranged(context.Background(), ts.URL, 50, Options{Client: ts.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got=%q, want=%q", got, data)
	}
}

func TestRanged_MissingContentLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hijack to force a response without Content-Length.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n")
		_ = buf.Flush()
	}))
	defer ts.Close()

	_, err := Ranged(context.Background(), ts.URL, 4, Options{Client: ts.Client()})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "MISSING_CONTENT_LENGTH" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "MISSING_CONTENT_LENGTH")
	}
}

func TestRanged_FailedRangeFailsWholeFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "100")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := Ranged(context.Background(), ts.URL, 4, Options{Client: ts.Client()})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "FETCH_FAILED" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "FETCH_FAILED")
	}
}

func TestRanged_RangeMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "100")
			return
		}
		// Ignore the Range header and reply with everything.
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer ts.Close()

	_, err := Ranged(context.Background(), ts.URL, 4, Options{Client: ts.Client()})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "RANGE_MISMATCH" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "RANGE_MISMATCH")
	}
}

func TestRanged_UnsupportedScheme(t *testing.T) {
	_, err := Ranged(context.Background(), "file:///etc/passwd", 4, Options{})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "INVALID_ARGUMENT" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "INVALID_ARGUMENT")
	}
	if fe.AppError.Stage != "fetch_rules" {
		t.Fatalf("stage=%q, want=%q", fe.AppError.Stage, "fetch_rules")
	}
}

func TestRanged_EmptyResource(t *testing.T) {
	ts := rangeServer(t, nil)
	defer ts.Close()

	got, err := Ranged(context.Background(), ts.URL, 4, Options{Client: ts.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len=%d, want=0", len(got))
	}
}
