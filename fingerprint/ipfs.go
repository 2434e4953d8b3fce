package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"certchain/certerr"
)

// IPFS talks to a Kubo node's RPC API. Fingerprint asks the node for the CID
// an artifact would have without storing it; Add stores and pins it.
type IPFS struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

// IPFSOption configures an IPFS client.
type IPFSOption func(*IPFS)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) IPFSOption {
	return func(c *IPFS) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IPFSOption {
	return func(c *IPFS) {
		c.logger = l
	}
}

// NewIPFS creates a client for the RPC API rooted at apiURL,
// e.g. http://localhost:5001/api/v0.
func NewIPFS(apiURL string, timeout time.Duration, opts ...IPFSOption) *IPFS {
	c := &IPFS{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fingerprint returns the CID of artifact without adding it to the node.
func (c *IPFS) Fingerprint(ctx context.Context, artifact []byte) (string, error) {
	return c.add(ctx, artifact, url.Values{"only-hash": {"true"}, "pin": {"false"}})
}

// Add stores and pins artifact, returning its CID.
func (c *IPFS) Add(ctx context.Context, artifact []byte) (string, error) {
	return c.add(ctx, artifact, url.Values{"pin": {"true"}})
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type rpcError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

func (c *IPFS) add(ctx context.Context, artifact []byte, params url.Values) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "artifact")
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "build upload")
	}
	if _, err := part.Write(artifact); err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "build upload")
	}
	if err := w.Close(); err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "build upload")
	}

	endpoint := c.apiURL + "/add?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "build request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "IPFS request failed")
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "read IPFS response")
	}
	if resp.StatusCode >= 300 {
		var rerr rpcError
		if json.Unmarshal(respBytes, &rerr) == nil && rerr.Message != "" {
			return "", certerr.New(certerr.CodeHashing, fmt.Sprintf("IPFS returned HTTP %d: %s", resp.StatusCode, rerr.Message))
		}
		return "", certerr.New(certerr.CodeHashing, fmt.Sprintf("IPFS returned HTTP %d: %s", resp.StatusCode, string(respBytes)))
	}

	var out addResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", certerr.Wrap(err, certerr.CodeHashing, "decode IPFS response")
	}
	if out.Hash == "" {
		return "", certerr.New(certerr.CodeHashing, "IPFS response carried no hash")
	}
	c.logger.Debug("ipfs add",
		zap.String("cid", out.Hash),
		zap.Int("bytes", len(artifact)),
		zap.Bool("only_hash", params.Get("only-hash") == "true"),
	)
	return out.Hash, nil
}
