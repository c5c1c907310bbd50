package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"actorfw/actor"
	"actorfw/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFlagsOverrideConfig(t *testing.T) {
	o, fs, err := parseFlags([]string{"--scenario", "ring", "--threads", "4", "--rate=50"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := loadConfig(o, fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bench.Scenario != "ring" || cfg.Framework.Threads != 4 || cfg.Bench.Rate != 50 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Bench.Messages != config.Default().Bench.Messages {
		t.Fatalf("unset flags must keep defaults")
	}
}

func TestFlagsRejectInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"--actors", "0"},
		{"--scenario", "nope"},
		{"--watch"},
	} {
		o, fs, err := parseFlags(args)
		if err != nil {
			t.Fatalf("parse %v: %v", args, err)
		}
		if _, err := loadConfig(o, fs); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
	if _, _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatalf("positional arguments must be rejected")
	}
}

func TestScenariosComplete(t *testing.T) {
	for _, name := range []string{"pingpong", "fanout", "ring"} {
		t.Run(name, func(t *testing.T) {
			fw := actor.NewFramework(actor.Options{Threads: 2, Logger: discard()})
			defer fw.Close()
			b := newBench(fw, config.BenchConfig{Scenario: name, Actors: 3, Messages: 500, PayloadBytes: 8}, discard())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			handled, _, err := b.run(ctx, name)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if handled != 500 {
				t.Fatalf("handled %d, want 500", handled)
			}
			if len(b.refs) != 0 {
				t.Fatalf("refs should be released")
			}
		})
	}
}

func TestSoakStopsOnCancel(t *testing.T) {
	fw := actor.NewFramework(actor.Options{Threads: 2, Logger: discard()})
	defer fw.Close()
	b := newBench(fw, config.BenchConfig{Scenario: "soak", Actors: 2, Messages: 100}, discard())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	handled, _, err := b.run(ctx, "soak")
	if err != nil {
		t.Fatalf("soak: %v", err)
	}
	if handled == 0 {
		t.Fatalf("soak handled nothing")
	}
}

func TestUnknownScenario(t *testing.T) {
	fw := actor.NewFramework(actor.Options{Threads: 1, Logger: discard()})
	defer fw.Close()
	if _, _, err := newBench(fw, config.BenchConfig{}, discard()).run(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestThrottle(t *testing.T) {
	now := time.Unix(100, 0)
	th := newThrottle(10, 5)
	th.now = func() time.Time { return now }
	th.lastNS.Store(now.UnixNano())

	for i := 0; i < 5; i++ {
		if !th.allow(1) {
			t.Fatalf("burst token %d", i)
		}
	}
	if th.allow(1) {
		t.Fatalf("bucket should be empty")
	}
	now = now.Add(200 * time.Millisecond)
	if !th.allow(2) || th.allow(1) {
		t.Fatalf("expected exactly two refilled tokens")
	}
	th.setRate(0)
	if !th.allow(100) {
		t.Fatalf("rate 0 means unlimited")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	th.setRate(1)
	if err := th.wait(ctx, 10); err == nil {
		t.Fatalf("wait should observe cancellation")
	}
}

func TestHealthServer(t *testing.T) {
	h, err := startHealth("127.0.0.1:0", discard())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.stop()
	conn, err := grpc.NewClient(h.addr.String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status %v", resp.GetStatus())
	}
	h.markDown()
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after markDown %v", resp.GetStatus())
	}
}

func TestRunPrintsReport(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--scenario", "pingpong", "--messages", "200", "--log-level", "error"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.String()
	for _, want := range []string{"scenario:    pingpong", "messages:    200", "messages_sent_total"} {
		if !strings.Contains(s, want) {
			t.Fatalf("report missing %q:\n%s", want, s)
		}
	}
}
