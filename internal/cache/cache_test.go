package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

func testCoords() models.Coordinates {
	return models.Coordinates{
		City:      "hyderabad",
		Country:   "in",
		Latitude:  17.36,
		Longitude: 78.47,
		Timestamp: time.Now(),
	}
}

func TestInMemoryCacheSetGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "hyderabad,in", testCoords(), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "hyderabad,in")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Latitude != 17.36 || got.Longitude != 78.47 {
		t.Errorf("got coords (%v, %v), want (17.36, 78.47)", got.Latitude, got.Longitude)
	}
}

func TestInMemoryCacheMiss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "nowhere,xx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestInMemoryCacheExpiration(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", testCoords(), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestInMemoryCacheOverwrite(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	first := testCoords()
	if err := c.Set(ctx, "k", first, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	second := first
	second.Latitude = 99
	if err := c.Set(ctx, "k", second, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, _ := c.Get(ctx, "k")
	if !ok || got.Latitude != 99 {
		t.Errorf("got %v, want overwritten latitude 99", got.Latitude)
	}
}

func TestInMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", testCoords(), time.Minute)
				_, _, _ = c.Get(ctx, "shared")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(done)
}
