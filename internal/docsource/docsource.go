// Package docsource fetches document bytes for the import pipeline from a
// local path or a gs:// URI.
package docsource

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// Document is the fetched payload plus the media type guessed from the
// object name.
type Document struct {
	Data     []byte
	MIMEType string
	Name     string
}

// Fetch reads the document behind ref: "gs://bucket/object" goes through
// Cloud Storage, everything else is treated as a local path.
func Fetch(ctx context.Context, ref string) (Document, error) {
	if strings.HasPrefix(ref, "gs://") {
		return fetchGCS(ctx, ref)
	}
	return fetchLocal(ref)
}

func fetchLocal(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("docsource: read %s: %w", path, err)
	}
	return Document{Data: data, MIMEType: guessMIME(path), Name: filepath.Base(path)}, nil
}

func fetchGCS(ctx context.Context, uri string) (Document, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return Document{}, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("docsource: create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("docsource: open %s: %w", uri, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("docsource: read %s: %w", uri, err)
	}

	mimeType := r.Attrs.ContentType
	if mimeType == "" {
		mimeType = guessMIME(object)
	}
	return Document{Data: data, MIMEType: mimeType, Name: filepath.Base(object)}, nil
}

// splitGCSURI splits "gs://bucket/path/to/object" into bucket and object.
func splitGCSURI(uri string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, object, found := strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", fmt.Errorf("docsource: malformed GCS URI %q", uri)
	}
	return bucket, object, nil
}

func guessMIME(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/pdf"
}
