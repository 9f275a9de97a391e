//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestLivez(t *testing.T) {
	resp := doGet(t, "/livez")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[healthResponse](t, resp)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	resp := doGet(t, "/readyz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[healthResponse](t, resp)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

// TestReadyz_RedisDown stops the candidate cache backend. Readiness must
// report the redis check while evaluation keeps serving from postgres, and
// recover once redis is back.
func TestReadyz_RedisDown(t *testing.T) {
	ctx := context.Background()

	redis, err := stack.ServiceContainer(ctx, "redis")
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}

	stopTimeout := 10 * time.Second
	if err := redis.Stop(ctx, &stopTimeout); err != nil {
		t.Fatalf("stop redis: %v", err)
	}
	started := false
	t.Cleanup(func() {
		if !started {
			_ = redis.Start(ctx)
		}
	})

	// Three failed checks at a 10s interval mark redis unhealthy.
	body := waitForReadiness(t, http.StatusServiceUnavailable, 60*time.Second)
	if body.Status != "unhealthy" {
		t.Fatalf("expected status unhealthy, got %q", body.Status)
	}
	if _, ok := body.Checks["redis"]; !ok {
		t.Fatalf("expected redis among failing checks, got %v", body.Checks)
	}
	if _, ok := body.Checks["postgres"]; ok {
		t.Fatalf("postgres must stay healthy, got %v", body.Checks)
	}

	res := evaluate(t, evaluateRequest{
		Currency: "USD",
		Now:      sunday,
		Cart:     cartRequest{Items: []itemRequest{{ProductID: 3, Quantity: 3, UnitPrice: "8.00"}}},
	})
	assertApplied(t, res, 2)

	if err := redis.Start(ctx); err != nil {
		t.Fatalf("start redis: %v", err)
	}
	started = true

	body = waitForReadiness(t, http.StatusOK, 60*time.Second)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func waitForReadiness(t *testing.T, want int, timeout time.Duration) healthResponse {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		resp := doGet(t, "/readyz")
		body := decodeJSON[healthResponse](t, resp)
		resp.Body.Close()

		if resp.StatusCode == want {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("readyz: expected %d within %s, last %d %v", want, timeout, resp.StatusCode, body.Checks)
		}
		time.Sleep(time.Second)
	}
}
