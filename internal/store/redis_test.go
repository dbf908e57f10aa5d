package store_test

import (
	"context"
	"testing"
	"time"

	"nfccheckin/internal/store"
)

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantAddr string
		wantDB   int
		wantPass string
		wantRead time.Duration
	}{
		{name: "host port", addr: "cache:6379", wantAddr: "cache:6379", wantRead: time.Second},
		{name: "url", addr: "redis://:s3cret@cache:6380/2", wantAddr: "cache:6380", wantDB: 2, wantPass: "s3cret", wantRead: time.Second},
		{name: "url timeout", addr: "redis://cache:6379/0?read_timeout=5s", wantAddr: "cache:6379", wantRead: 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := store.RedisOptions(tt.addr)
			if err != nil {
				t.Fatalf("RedisOptions: %v", err)
			}
			if opts.Addr != tt.wantAddr || opts.DB != tt.wantDB || opts.Password != tt.wantPass {
				t.Errorf("addr=%q db=%d pass=%q", opts.Addr, opts.DB, opts.Password)
			}
			if opts.ReadTimeout != tt.wantRead || opts.DialTimeout != 2*time.Second {
				t.Errorf("read=%v dial=%v", opts.ReadTimeout, opts.DialTimeout)
			}
		})
	}

	for _, bad := range []string{"", "  ", "http://cache:6379"} {
		if _, err := store.RedisOptions(bad); err == nil {
			t.Errorf("RedisOptions(%q) accepted", bad)
		}
	}
}

func TestRedisUnreachable(t *testing.T) {
	r, err := store.NewRedis("redis://127.0.0.1:1/0?dial_timeout=100ms")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	if r.Addr() != "127.0.0.1:1" {
		t.Errorf("addr = %q", r.Addr())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if r.Healthy(ctx) {
		t.Error("unreachable redis reported healthy")
	}
}
