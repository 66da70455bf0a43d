package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

// fakeVimeo serves /me/videos and PATCH /videos/<id>, issuing ids from next.
func fakeVimeo(t *testing.T, next int64, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/me/videos":
			var body createUploadBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode create body: %v", err)
			}
			if body.Upload.Approach != "tus" || body.Privacy.View != "unlisted" {
				t.Errorf("unexpected upload shaping: %+v", body)
			}
			if body.FolderURI != "/users/u1/projects/f1" {
				t.Errorf("unexpected folder %q", body.FolderURI)
			}
			id := atomic.AddInt64(&next, 1) - 1
			fmt.Fprintf(w, `{"uri":"/videos/%d","link":"https://vimeo.com/%d","upload":{"upload_link":"https://u/%d"}}`, id, id, id)
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/videos/"):
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	return NewClient(Config{APIURL: url + "/", Token: "tok", UserID: "u1", FolderID: "f1"}, nil, zaptest.NewLogger(t))
}

func TestStartThenFinalizeKeepsNumericID(t *testing.T) {
	var calls int32
	srv := fakeVimeo(t, 1000, &calls)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	for _, size := range []int64{1, 4096, 1000000, 5 << 20} {
		sess, err := c.CreateUpload(ctx, size, "x")
		if err != nil {
			t.Fatalf("create upload (size %d): %v", size, err)
		}
		if sess.UploadLink == "" {
			t.Fatalf("expected upload link for size %d", size)
		}
		out, err := c.Finalize(ctx, sess.VideoURI, "final")
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		id := ExtractVideoID(sess.VideoURI)
		if id == "" || !strings.HasSuffix(out.PlayerLink, "/video/"+id) {
			t.Fatalf("player link %q does not carry id of %q", out.PlayerLink, sess.VideoURI)
		}
		if out.PageLink != "https://vimeo.com/"+id {
			t.Fatalf("expected fallback page link, got %q", out.PageLink)
		}
	}
}

func TestFinalizeMissingURISkipsProvider(t *testing.T) {
	var calls int32
	srv := fakeVimeo(t, 1, &calls)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Finalize(context.Background(), "", "name")
	if !errors.Is(err, ErrMissingVideoURI) {
		t.Fatalf("expected ErrMissingVideoURI, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no provider calls, got %d", calls)
	}
}

// hostRecorder records the host of every outgoing request and answers 200.
type hostRecorder struct {
	hosts []string
	auths []string
}

func (d *hostRecorder) Do(req *http.Request) (*http.Response, error) {
	d.hosts = append(d.hosts, req.URL.Host)
	d.auths = append(d.auths, req.Header.Get("Authorization"))
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`)), Header: make(http.Header)}, nil
}

func TestFinalizeRejectsForeignURIs(t *testing.T) {
	for _, uri := range []string{
		"@evil.example/videos/555",
		"https://evil.example/videos/555",
		"//evil.example/videos/555",
		"/videos/555@evil.example",
		"/videos/555/../../users/1",
		"/videos/555?x=1",
		"videos/555",
		"/videos/abc",
	} {
		doer := &hostRecorder{}
		c := NewClient(Config{APIURL: "https://api.vimeo.com", Token: "SECRET"}, doer, zaptest.NewLogger(t))
		_, err := c.Finalize(context.Background(), uri, "x")
		if !errors.Is(err, ErrInvalidVideoURI) {
			t.Fatalf("%q: expected ErrInvalidVideoURI, got %v", uri, err)
		}
		if len(doer.hosts) != 0 {
			t.Fatalf("%q: request sent to %v with %v", uri, doer.hosts, doer.auths)
		}
	}

	doer := &hostRecorder{}
	c := NewClient(Config{APIURL: "https://api.vimeo.com", Token: "SECRET"}, doer, zaptest.NewLogger(t))
	if _, err := c.Finalize(context.Background(), "/videos/555", "x"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(doer.hosts) != 1 || doer.hosts[0] != "api.vimeo.com" {
		t.Fatalf("expected one call to api.vimeo.com, got %v", doer.hosts)
	}
}

func TestCreateUploadProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateUpload(context.Background(), 10, "")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusUnauthorized || string(perr.Body) != `{"error":"invalid token"}` {
		t.Fatalf("unexpected provider error %+v", perr)
	}
}

func TestDeriveLinks(t *testing.T) {
	cases := []struct {
		name, uri, link    string
		wantPlayer, wantPg string
	}{
		{"provider link wins", "/videos/555", "https://vimeo.com/555/abc", "https://player.vimeo.com/video/555", "https://vimeo.com/555/abc"},
		{"fallback page", "/videos/555", "", "https://player.vimeo.com/video/555", "https://vimeo.com/555"},
		{"no id", "/albums/9", "https://vimeo.com/x", "", "https://vimeo.com/x"},
		{"no id no link", "garbage", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveLinks(tc.uri, tc.link)
			if got.PlayerLink != tc.wantPlayer || got.PageLink != tc.wantPg {
				t.Fatalf("got %+v", got)
			}
		})
	}
}
