package entropy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClient(t *testing.T) {
	var c *Client
	assert.False(t, c.Enabled())
	assert.Positive(t, c.Seed())
	assert.Nil(t, NewClient(""))
}

func TestCryptoSeed(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		s := CryptoSeed()
		assert.Positive(t, s)
		seen[s] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestSeedFromPool(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Method string `json:"method"`
			Params struct {
				APIKey string `json:"apiKey"`
				N      int    `json:"n"`
			} `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "generateIntegers", req.Method)
		assert.Equal(t, "key", req.Params.APIKey)
		assert.Equal(t, batchSize, req.Params.N)
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[7,11]}},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key").WithEndpoint(srv.URL)
	require.True(t, c.Enabled())
	assert.Equal(t, int64(7), c.Seed())
	assert.Equal(t, int64(11), c.Seed())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(7), c.Seed())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSeedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"quota exceeded"},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key").WithEndpoint(srv.URL)
	assert.Positive(t, c.Seed())

	srv.Close()
	assert.Positive(t, c.Seed())
}
