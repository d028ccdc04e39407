package attachments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/gateway/httpclient"
)

// Signer issues a time-limited download URL for a private storage object.
type Signer interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// SupabaseSigner talks to the Supabase storage REST API with the service
// role key.
type SupabaseSigner struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
}

func NewSupabaseSigner(supabaseURL, serviceRoleKey, bucket string, timeout time.Duration) *SupabaseSigner {
	return &SupabaseSigner{
		baseURL: strings.TrimRight(supabaseURL, "/"),
		apiKey:  serviceRoleKey,
		bucket:  bucket,
		client:  httpclient.New(timeout),
	}
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

func (s *SupabaseSigner) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapePath(path))
	headers := map[string]string{
		"Authorization": "Bearer " + s.apiKey,
		"apikey":        s.apiKey,
	}

	var out signResponse
	err := httpclient.Retry(ctx, 3, 200*time.Millisecond, func() error {
		return httpclient.DoJSON(ctx, s.client, http.MethodPost, endpoint, headers, signRequest{ExpiresIn: int(ttl.Seconds())}, &out)
	})
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", s.bucket, err)
	}
	if out.SignedURL == "" {
		return "", errors.New("storage returned an empty signed url")
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
