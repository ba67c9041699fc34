package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []map[string]any
}

func (b *inbox) all() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.msgs...)
}

func escrowServer(t *testing.T, status int, body string) (*httptest.Server, *inbox) {
	t.Helper()
	received := &inbox{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var msg map[string]any
		_ = json.Unmarshal(raw, &msg)
		received.mu.Lock()
		received.msgs = append(received.msgs, msg)
		received.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func TestHTTPTarget_Delivers(t *testing.T) {
	srv, received := escrowServer(t, http.StatusOK, "")
	target := notifier.NewHTTPTarget(srv.URL, srv.Client())

	out := notifier.New(notifier.Config{}).Notify(context.Background(), srv.URL, target, "trip-7", true)
	require.True(t, out.Succeeded, string(out.Reason))
	msgs := received.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "trip-7", msgs[0]["trip_id"])
	assert.Equal(t, true, msgs[0]["outcome"])
}

func TestHTTPTarget_RevertBodyIsReason(t *testing.T) {
	srv, _ := escrowServer(t, http.StatusConflict, "Escrow: trip already settled")
	target := notifier.NewHTTPTarget(srv.URL, srv.Client())

	out := notifier.New(notifier.Config{}).Notify(context.Background(), srv.URL, target, "trip-7", true)
	assert.False(t, out.Succeeded)
	assert.Equal(t, "Escrow: trip already settled", string(out.Reason))
}

func TestHTTPResolver(t *testing.T) {
	ctx := context.Background()
	live, _ := escrowServer(t, http.StatusOK, "")
	gone, _ := escrowServer(t, http.StatusNotFound, "")
	r := notifier.NewHTTPResolver(live.Client())

	target, err := r.Resolve(ctx, live.URL)
	require.NoError(t, err)
	assert.Equal(t, live.URL, target.(*notifier.HTTPTarget).Address())

	_, err = r.Resolve(ctx, gone.URL)
	assert.ErrorIs(t, err, faults.ErrNotAContract)

	_, err = r.Resolve(ctx, "0xdeadbeef")
	assert.ErrorIs(t, err, faults.ErrNotAContract)

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = r.Resolve(ctx, url)
	assert.ErrorIs(t, err, faults.ErrNotAContract)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := notifier.NewDirectory()
	target := notifier.TargetFunc(func(context.Context, string, bool) error { return nil })

	_, err := d.Resolve(ctx, "0xEscrow")
	assert.ErrorIs(t, err, faults.ErrNotAContract)

	d.Register("0xEscrow", target)
	got, err := d.Resolve(ctx, "0xescrow")
	require.NoError(t, err)
	assert.NotNil(t, got)

	d.Remove("0xESCROW")
	_, err = d.Resolve(ctx, "0xEscrow")
	assert.ErrorIs(t, err, faults.ErrNotAContract)
}
