package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futarchy_wallet/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chainIDServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(req), "eth_chainId")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCProbe_ChainID(t *testing.T) {
	srv := chainIDServer(t, `{"jsonrpc":"2.0","id":1,"result":"0x13882"}`)
	probe := NewRPCProbe(time.Second, zap.NewNop())

	id, err := probe.ChainID(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), id)
}

func TestRPCProbe_ChainIDRPCError(t *testing.T) {
	srv := chainIDServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
	probe := NewRPCProbe(time.Second, nil)

	_, err := probe.ChainID(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestRPCProbe_SelectURL(t *testing.T) {
	wrong := chainIDServer(t, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	right := chainIDServer(t, `{"jsonrpc":"2.0","id":1,"result":"0x13882"}`)
	probe := NewRPCProbe(time.Second, zap.NewNop())

	netDef := entity.NetworkConfig{ChainID: 80002, Key: "amoy", RPCURLs: []string{wrong.URL, right.URL}}
	got, err := probe.SelectURL(context.Background(), netDef)
	require.NoError(t, err)
	assert.Equal(t, right.URL, got)

	netDef.RPCURLs = []string{wrong.URL}
	_, err = probe.SelectURL(context.Background(), netDef)
	require.Error(t, err)
}
