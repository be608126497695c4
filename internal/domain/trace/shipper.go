package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPShipper posts sealed records to an external observability endpoint.
type HTTPShipper struct {
	url    string
	client *http.Client
}

// NewHTTPShipper creates a shipper for the given endpoint.
func NewHTTPShipper(url string) *HTTPShipper {
	return &HTTPShipper{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Ship implements Shipper.
func (s *HTTPShipper) Ship(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trace record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trace sink returned %d", resp.StatusCode)
	}
	return nil
}
