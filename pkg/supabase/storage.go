package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/raulancona/gourmetclick/pkg/httpclient"
)

// StorageClient uploads objects to Storage with the service key.
type StorageClient struct {
	baseURL    string
	serviceKey string
	http       httpclient.Doer
}

// NewStorageClient returns a client for the project at baseURL. Requests go
// through doer, normally a httpclient.CircuitBreakerClient.
func NewStorageClient(baseURL, serviceKey string, doer httpclient.Doer) *StorageClient {
	return &StorageClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		http:       doer,
	}
}

// Upload stores body at bucket/objectPath, replacing any existing object, and
// returns its public URL.
func (s *StorageClient) Upload(ctx context.Context, bucket, objectPath, contentType string, body []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, objectPath), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "true")

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", httpclient.ParseResponseError(resp, "storage")
	}
	_ = resp.Body.Close()

	return s.PublicURL(bucket, objectPath), nil
}

// Remove deletes objects from bucket. Missing objects are not an error.
func (s *StorageClient) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal remove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.baseURL+"/storage/v1/object/"+url.PathEscape(bucket), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build remove request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode != http.StatusNotFound {
		return httpclient.ParseResponseError(resp, "storage")
	}
	_ = resp.Body.Close()
	return nil
}

// PublicURL is the URL of an object in a public bucket.
func (s *StorageClient) PublicURL(bucket, objectPath string) string {
	return s.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(objectPath)
}

// ObjectPath returns the object path for a public URL produced by PublicURL,
// or false when the URL points elsewhere.
func (s *StorageClient) ObjectPath(bucket, publicURL string) (string, bool) {
	prefix := s.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	p, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}

func (s *StorageClient) objectURL(bucket, objectPath string) string {
	return s.baseURL + "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(objectPath)
}

func (s *StorageClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
