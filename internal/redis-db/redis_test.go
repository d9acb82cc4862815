package redis_db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
		tls      bool
		wantErr  bool
	}{
		{name: "simple docker style", url: "redis:6379", addr: "redis:6379"},
		{name: "redis url with password", url: "redis://:password123@localhost:6379", addr: "localhost:6379", password: "password123"},
		{name: "bare password", url: "redis://password123@localhost:6379/2", addr: "localhost:6379", password: "password123", db: 2},
		{name: "azure redis url", url: "myinstance.redis.cache.windows.net:6380", addr: "myinstance.redis.cache.windows.net:6380", tls: true},
		{name: "tls url", url: "rediss://:pw@cache.internal:6380", addr: "cache.internal:6380", password: "pw", tls: true},
		{name: "bad port", url: "redis://localhost:port", wantErr: true},
		{name: "empty", url: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedisURL(tt.url, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got.Addr)
			assert.Equal(t, tt.password, got.Password)
			assert.Equal(t, tt.db, got.DB)
			assert.Equal(t, tt.tls, got.TLSConfig != nil)
		})
	}
}

func TestParseRedisURL_SkipTLSVerify(t *testing.T) {
	got, err := ParseRedisURL("rediss://:pw@cache.internal:6380", true)
	require.NoError(t, err)
	require.NotNil(t, got.TLSConfig)
	assert.True(t, got.TLSConfig.InsecureSkipVerify)

	plain, err := ParseRedisURL("localhost:6379", true)
	require.NoError(t, err)
	assert.Nil(t, plain.TLSConfig)
}

func TestAsynqOptions(t *testing.T) {
	opts, err := AsynqOptions("redis://:secret@queue.local:6379/3", false)
	require.NoError(t, err)
	assert.Equal(t, "queue.local:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = AsynqOptions("", false)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	addr := mr.Addr()
	assert.NoError(t, Ping(context.Background(), addr, false, time.Second))

	mr.Close()
	assert.Error(t, Ping(context.Background(), addr, false, 200*time.Millisecond))
}
