package queue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentBroker accepts TCP connections and never speaks AMQP.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpAtContextDeadline(t *testing.T) {
	p := NewPublisher(silentBroker(t), nil)
	t.Cleanup(func() { _ = p.Close() })

	const timeout = 300 * time.Millisecond
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, 3)
	for i := range elapsed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			began := time.Now()
			err := p.Publish(ctx, sampleEvent())
			elapsed[i] = time.Since(began)
			assert.Error(t, err)
		}()
	}
	wg.Wait()

	// Publishers queue on the connection mutex, but each dial stops at its
	// own deadline, so the last one finishes within a few timeouts.
	for i, d := range elapsed {
		assert.Less(t, d, 4*timeout+time.Second, "publish %d", i)
	}
}

func TestPublishWithExpiredContextDoesNotDial(t *testing.T) {
	p := NewPublisher(silentBroker(t), nil)
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, sampleEvent())
	require.ErrorIs(t, err, context.Canceled)
}

func TestDialTimeout(t *testing.T) {
	d, err := dialTimeout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, maxDialTimeout, d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err = dialTimeout(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, time.Second)
	assert.Positive(t, d)
}
