package agent

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/burrowgate/burrowgate/internal/proto"
)

// fetcher performs the actual LAN HTTP exchanges and wraps the results into
// the response envelope the gateway unpacks.
type fetcher struct {
	client  *http.Client
	maxSize int64
}

func newFetcher(insecureTLS bool, maxSize int64, timeout time.Duration) *fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		maxSize: maxSize,
	}
}

// fetch runs one forwarded request against the LAN target. The response body
// is fully buffered (capped at maxSize) and returned as the header/base64
// envelope so binary payloads survive the string-typed tunnel frame.
func (f *fetcher) fetch(ctx context.Context, req *proto.Request) (*proto.Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(raw)) > f.maxSize {
		return nil, fmt.Errorf("response exceeds %d byte limit", f.maxSize)
	}

	return &proto.Response{
		Status: httpResp.StatusCode,
		Body:   proto.EncodeEnvelope(httpResp.Header, raw),
	}, nil
}
