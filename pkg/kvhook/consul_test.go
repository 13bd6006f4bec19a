package kvhook

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jkbrsn/vigil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsul serves the KV endpoint of a Consul agent.
type fakeConsul struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (f *fakeConsul) set(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *fakeConsul) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Consul-Index", "7")
	w.Header().Set("X-Consul-KnownLeader", "true")
	w.Header().Set("X-Consul-LastContact", "0")

	key, ok := strings.CutPrefix(r.URL.Path, "/v1/kv/")
	if !ok || key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	value, found := f.values[key]
	f.mu.Unlock()
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`[{"Key":"` + key + `","Value":"` + base64.StdEncoding.EncodeToString(value) +
		`","Flags":0,"CreateIndex":7,"ModifyIndex":7,"LockIndex":0}]`))
}

func newFakeConsul(t *testing.T) (*fakeConsul, string) {
	t.Helper()
	f := &fakeConsul{values: make(map[string][]byte)}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, strings.TrimPrefix(server.URL, "http://")
}

func TestConsulGet(t *testing.T) {
	fake, addr := newFakeConsul(t)
	fake.set("jobs/ingest", []byte("done"))

	hook, err := NewConsul(addr, WithConsulToken("secret"))
	require.NoError(t, err)
	ctx := context.Background()

	value, ok, err := hook.Get(ctx, "jobs/ingest")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("done"), value)

	_, ok, err = hook.Get(ctx, "jobs/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = hook.Get(ctx, "")
	assert.ErrorIs(t, err, vigil.ErrResource)
}

func TestConsulUnreachable(t *testing.T) {
	hook, err := NewConsul("127.0.0.1:1")
	require.NoError(t, err)
	_, _, err = hook.Get(context.Background(), "k")
	assert.ErrorIs(t, err, vigil.ErrResource)
}

func TestKVSensorOnConsul(t *testing.T) {
	fake, addr := newFakeConsul(t)
	hook, err := NewConsul(addr, WithConsulLoggers(vigil.LogConfig{Verbose: true}.Build()))
	require.NoError(t, err)

	s, err := vigil.NewSensor("consul", &vigil.KVSensor{Hook: hook, Key: "jobs/ingest", Value: []byte("done")},
		vigil.WithPokeInterval(5*time.Millisecond),
		vigil.WithTimeout(time.Second),
	)
	require.NoError(t, err)

	fake.set("jobs/ingest", []byte("running"))
	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.set("jobs/ingest", []byte("done"))
	}()
	out, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vigil.StateSuccess, out.State)
	assert.Greater(t, out.Pokes, int64(1))
}
