package svc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransportProxy(t *testing.T) {
	transport, err := newTransportProxy(config.Sock5Proxy{})
	require.NoError(t, err)
	assert.Nil(t, transport)

	transport, err = newTransportProxy(config.Sock5Proxy{Enable: true, Host: "127.0.0.1", Port: 1080})
	require.NoError(t, err)
	require.NotNil(t, transport)
	assert.NotNil(t, transport.DialContext)
	assert.Nil(t, transport.Proxy)
}

func TestHTTPClient(t *testing.T) {
	client := httpClient(nil, 30*time.Second)
	assert.Nil(t, client.Transport)
	assert.Equal(t, 30*time.Second, client.Timeout)
}

func TestNewServiceContext(t *testing.T) {
	c := &config.Config{}
	c.ApplyDefaults()
	c.Storage.Path = filepath.Join(t.TempDir(), "brief.db")

	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()

	assert.NotNil(t, svcCtx.BriefService)
	assert.False(t, svcCtx.SlackClient.Configured())
	assert.False(t, svcCtx.HubSpotClient.Configured())
	assert.False(t, svcCtx.LLMClient.Configured())
	assert.False(t, svcCtx.Notifier.Enabled())
	assert.Nil(t, svcCtx.TransportProxy)
}

func TestNewServiceContext_WithProxy(t *testing.T) {
	c := &config.Config{}
	c.ApplyDefaults()
	c.Storage.Path = filepath.Join(t.TempDir(), "brief.db")
	c.Sock5Proxy = config.Sock5Proxy{Enable: true, Host: "127.0.0.1", Port: 1080}

	svcCtx := NewServiceContext(c)
	require.NotNil(t, svcCtx.TransportProxy)
	assert.NotNil(t, svcCtx.TransportProxy.DialContext)
	svcCtx.Close()
}
