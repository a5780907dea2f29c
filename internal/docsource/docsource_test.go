package docsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fatura.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(doc.Data) != "%PDF-1.4" {
		t.Errorf("Data = %q", doc.Data)
	}
	if doc.MIMEType != "application/pdf" {
		t.Errorf("MIMEType = %q, want application/pdf", doc.MIMEType)
	}
	if doc.Name != "fatura.pdf" {
		t.Errorf("Name = %q, want fatura.pdf", doc.Name)
	}
}

func TestFetchLocalMissing(t *testing.T) {
	if _, err := Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("Fetch: expected error for missing file")
	}
}

func TestSplitGCSURI(t *testing.T) {
	tests := []struct {
		uri            string
		bucket, object string
		wantErr        bool
	}{
		{uri: "gs://docs/2025/fatura.pdf", bucket: "docs", object: "2025/fatura.pdf"},
		{uri: "gs://docs", wantErr: true},
		{uri: "gs://docs/", wantErr: true},
		{uri: "gs:///obj", wantErr: true},
	}
	for _, tt := range tests {
		bucket, object, err := splitGCSURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitGCSURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitGCSURI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || object != tt.object {
			t.Errorf("splitGCSURI(%q) = %q, %q", tt.uri, bucket, object)
		}
	}
}
