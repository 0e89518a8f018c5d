package infra

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0", time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if got := client.Options().ReadTimeout; got != time.Second {
		t.Fatalf("expected read timeout 1s, got %v", got)
	}

	if _, err := NewRedisClient(context.Background(), "", time.Second); err == nil {
		t.Fatal("expected empty url to fail")
	}
	if _, err := NewRedisClient(context.Background(), "not a url", time.Second); err == nil {
		t.Fatal("expected malformed url to fail")
	}

	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisClient(context.Background(), "redis://"+addr+"/0", 200*time.Millisecond); err == nil {
		t.Fatal("expected unreachable redis to fail")
	}
}
