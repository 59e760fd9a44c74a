// Package entropy supplies scene seeds: true random integers from random.org
// when an API key is configured, crypto/rand otherwise.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultEndpoint is the random.org JSON-RPC endpoint.
const DefaultEndpoint = "https://api.random.org/json-rpc/4/invoke"

const (
	batchSize = 16
	maxSeed   = 1_000_000_000 // random.org integer ceiling
)

// Client hands out seeds from a pool refilled from random.org.
// A nil *Client is valid and always uses crypto/rand.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu   sync.Mutex
	pool []int64
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// WithEndpoint points the client at another JSON-RPC server.
func (c *Client) WithEndpoint(url string) *Client {
	if c != nil {
		c.endpoint = url
	}
	return c
}

// Seed returns a positive seed. Falls back to crypto/rand when the pool
// cannot be refilled.
func (c *Client) Seed() int64 {
	if c == nil {
		return CryptoSeed()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) == 0 {
		if err := c.refill(); err != nil {
			slog.Debug("random.org refill failed", "error", err)
		}
	}
	if len(c.pool) == 0 {
		return CryptoSeed()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      batchSize,
			"min":    1,
			"max":    maxSeed,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("random.org status %d", resp.StatusCode)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("random.org parse: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("random.org: %s", result.Error.Message)
	}

	for _, v := range result.Result.Random.Data {
		if v > 0 {
			c.pool = append(c.pool, v)
		}
	}
	slog.Debug("random.org pool refilled", "count", len(c.pool))
	return nil
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// CryptoSeed returns a positive seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()&(1<<62-1) | 1
	}
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if n == 0 {
		return 1
	}
	return n
}
