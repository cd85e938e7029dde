package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutable(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"192.168.0.1", false},
		{"::1", false},
		{"169.254.1.1", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, Routable(tt.ip))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Riga, Latvia", Format("Riga", "Latvia"))
	assert.Equal(t, "Latvia", Format("", "Latvia"))
	assert.Equal(t, "Riga", Format("Riga", ""))
	assert.Equal(t, "", Format("", ""))
}

func TestHTTPLocator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8":
			_, _ = w.Write([]byte(`{"status":"success","city":"Mountain View","country":"United States"}`))
		case "/1.1.1.1":
			_, _ = w.Write([]byte(`{"status":"fail"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	l := NewHTTPLocator(srv.URL+"/", time.Second, logging.NewDiscard())
	ctx := context.Background()

	assert.Equal(t, "Mountain View, United States", l.Locate(ctx, "8.8.8.8"))
	assert.Equal(t, "", l.Locate(ctx, "1.1.1.1"))
	assert.Equal(t, "", l.Locate(ctx, "9.9.9.9"))
	assert.Equal(t, "", l.Locate(ctx, "127.0.0.1"))
}

type countingLocator struct {
	calls atomic.Int32
	out   string
}

func (c *countingLocator) Locate(context.Context, string) string {
	c.calls.Add(1)
	return c.out
}

func TestCachedLocator_HitsAndEviction(t *testing.T) {
	next := &countingLocator{out: "Oslo, Norway"}
	c, err := NewCachedLocator(next, 2)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "Oslo, Norway", c.Locate(ctx, "8.8.8.8"))
	assert.Equal(t, "Oslo, Norway", c.Locate(ctx, "8.8.8.8"))
	assert.EqualValues(t, 1, next.calls.Load())

	c.Locate(ctx, "8.8.4.4")
	c.Locate(ctx, "1.1.1.1")
	assert.Equal(t, 2, c.Len())

	// 8.8.8.8 was least recently used and got evicted
	c.Locate(ctx, "8.8.8.8")
	assert.EqualValues(t, 4, next.calls.Load())
}

func TestCachedLocator_DoesNotCacheMisses(t *testing.T) {
	next := &countingLocator{}
	c, err := NewCachedLocator(next, 8)
	require.NoError(t, err)

	c.Locate(context.Background(), "8.8.8.8")
	c.Locate(context.Background(), "8.8.8.8")
	assert.EqualValues(t, 2, next.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestNewCachedLocator_InvalidSize(t *testing.T) {
	_, err := NewCachedLocator(Nop{}, 0)
	require.Error(t, err)
}
