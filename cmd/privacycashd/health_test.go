package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckHealthProbesConcurrently(t *testing.T) {
	hc := NewHealthChecker("test")
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	hc.RegisterComponent("relayer", func(ctx context.Context) error {
		entered <- struct{}{}
		<-release
		return nil
	})

	var wg sync.WaitGroup
	results := make([]*SystemHealth, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = hc.CheckHealth(context.Background())
		}()
	}

	// Both callers must be inside the probe at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			close(release)
			t.Fatal("concurrent health checks were serialized")
		}
	}
	close(release)
	wg.Wait()
	for _, h := range results {
		require.Equal(t, Healthy, h.OverallStatus)
	}

	// A failing probe marks the system unhealthy.
	hc.RegisterComponent("rpc", func(context.Context) error { return errors.New("down") })
	h := hc.CheckHealth(context.Background())
	require.Equal(t, Unhealthy, h.OverallStatus)
	require.Equal(t, "rpc", h.Components[1].Name)
	require.Equal(t, "down", h.Components[1].Message)
}
