package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/charlotte/internal/errdefs"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(p, []byte("# Notes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := newTestLoader(t)

	for _, uri := range []string{p, "file://" + filepath.ToSlash(p)} {
		got, err := l.Fetch(context.Background(), uri)
		if err != nil {
			t.Fatalf("Fetch(%s) error = %v", uri, err)
		}
		if got.Type != TypeFile || got.Ext != ".md" || string(got.Body) != "# Notes\n" {
			t.Errorf("Fetch(%s) = %+v", uri, got)
		}
		if !strings.HasPrefix(got.URI, "file://") {
			t.Errorf("URI = %q", got.URI)
		}
	}

	if _, err := l.Fetch(context.Background(), filepath.Join(dir, "missing.txt")); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want not found", err)
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/handbook.md":
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = io.WriteString(w, "# Handbook")
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "upstream down")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	l := newTestLoader(t)

	tests := []struct {
		name     string
		path     string
		wantErr  error
		wantBody string
	}{
		{name: "ok", path: "/handbook.md", wantBody: "# Handbook"},
		{name: "not found", path: "/nope", wantErr: errdefs.ErrNotFound},
		{name: "server error", path: "/broken", wantErr: errdefs.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Fetch(context.Background(), srv.URL+tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(got.Body) != tt.wantBody || got.ContentType != "text/markdown" || got.Type != TypeWeb {
				t.Errorf("Fetch() = %+v", got)
			}
		})
	}

	t.Run("body is kept on errors", func(t *testing.T) {
		_, err := l.Fetch(context.Background(), srv.URL+"/broken")
		if err == nil || !strings.Contains(err.Error(), "upstream down") {
			t.Errorf("Fetch() error = %v, want the response body", err)
		}
	})
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("a", 64))
	}))
	defer srv.Close()
	l, err := NewLoader(context.Background(), Config{MaxBytes: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Fetch(context.Background(), srv.URL); !errors.Is(err, errdefs.ErrInvalid) {
		t.Fatalf("Fetch() error = %v, want invalid", err)
	}
}

type fakeS3 struct {
	objects map[string]string
	err     error
	gotKey  string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: aws.String("text/plain"),
	}, nil
}

func TestFetchS3(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		err     error
		wantErr error
	}{
		{name: "ok", uri: "s3://docs/team/calendar.txt"},
		{name: "missing key", uri: "s3://docs/team/other.txt", wantErr: errdefs.ErrNotFound},
		{name: "access denied", uri: "s3://docs/team/calendar.txt", err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}, wantErr: errdefs.ErrBackendUnavailable},
		{name: "no key", uri: "s3://docs", wantErr: errdefs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{objects: map[string]string{"docs/team/calendar.txt": "Friday 3pm"}, err: tt.err}
			l := newTestLoader(t)
			l.s3 = fake

			got, err := l.Fetch(context.Background(), tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(got.Body) != "Friday 3pm" || got.Ext != ".txt" || got.Type != TypeS3 {
				t.Errorf("Fetch() = %+v", got)
			}
		})
	}

	if _, err := newTestLoader(t).Fetch(context.Background(), "s3://docs/a.txt"); !errors.Is(err, errdefs.ErrInvalid) {
		t.Errorf("unconfigured s3 error = %v, want invalid", err)
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	if _, err := newTestLoader(t).Fetch(context.Background(), "ftp://example.com/a.txt"); !errors.Is(err, errdefs.ErrInvalid) {
		t.Fatalf("Fetch() error = %v, want invalid", err)
	}
}
