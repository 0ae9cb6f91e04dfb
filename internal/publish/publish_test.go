package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"pdproute/internal/model"
)

func sampleReport() model.Report {
	return model.Report{
		RunID:         "run-1",
		Status:        "SOLVED",
		Strategy:      "global-cheapest-arc",
		Objective:     1515,
		TotalDistance: 15,
		Routes: []model.RouteOut{{
			Vehicle: 0, VehicleID: "v0", Distance: 15,
			Stops: []model.StopOut{{Node: 1, Label: "P1"}, {Node: 2, Label: "D1", Distance: 15, Capacity: 1}},
		}},
		RouteSizes: map[int]int{2: 1},
	}
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"status":"SOLVED"}`)
	sig := Sign("s3cret", body)
	if !Verify("s3cret", body, sig) {
		t.Fatalf("signature did not verify")
	}
	if Verify("other", body, sig) || Verify("s3cret", []byte(`{}`), sig) || Verify("s3cret", body, "zz") {
		t.Fatalf("verify accepted a bad signature")
	}
}

type recordingSink struct {
	got  []string
	fail string
}

func (r *recordingSink) Publish(_ context.Context, rep model.Report) error {
	if rep.RunID == r.fail {
		return errors.New("refused")
	}
	r.got = append(r.got, rep.RunID)
	return nil
}

func TestPublishAllStopsAtFirstFailure(t *testing.T) {
	a, b, c := sampleReport(), sampleReport(), sampleReport()
	b.RunID, c.RunID = "run-2", "run-3"
	sink := &recordingSink{fail: "run-2"}
	err := PublishAll(context.Background(), sink, []model.Report{a, b, c})
	if err == nil || len(sink.got) != 1 || sink.got[0] != "run-1" {
		t.Fatalf("got = %v, err = %v", sink.got, err)
	}
	sink = &recordingSink{}
	if err := PublishAll(context.Background(), sink, []model.Report{a, b, c}); err != nil || len(sink.got) != 3 {
		t.Fatalf("got = %v, err = %v", sink.got, err)
	}
}

func TestRedisSinkPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink("redis://"+mr.Addr(), "pdp:reports", "s3cret")
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	envs, err := sink.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sink.Publish(ctx, sampleReport()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case env := <-envs:
		if !env.Verified("s3cret") || env.Verified("nope") {
			t.Fatalf("signature check failed: %+v", env)
		}
		r, err := env.Report()
		if err != nil || r.Objective != 1515 || r.RouteSizes[2] != 1 {
			t.Fatalf("report = %+v, err = %v", r, err)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for envelope")
	}

	latest, err := sink.Latest(ctx, "run-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !latest.Verified("s3cret") {
		t.Fatalf("stored envelope not signed: %+v", latest)
	}
	if ttl := mr.TTL("pdp:report:run-1"); ttl != 24*time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}
	if _, err := sink.Latest(ctx, "missing"); !errors.Is(err, redis.Nil) {
		t.Fatalf("missing run err = %v, want redis.Nil", err)
	}
}

func TestRedisSinkGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink("redis://"+mr.Addr(), "pdp:reports", "")
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	defer sink.Close()
	sink.MaxAttempts = 2
	sink.Backoff = time.Millisecond
	mr.SetError("ERR injected failure")
	if err := sink.Publish(context.Background(), sampleReport()); err == nil {
		t.Fatalf("publish against a failing server must fail")
	}
}

func TestNewRedisSinkBadURL(t *testing.T) {
	if _, err := NewRedisSink("http://nope", "c", ""); err == nil {
		t.Fatalf("want error for non-redis url")
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(time.Second, 0); got != time.Second {
		t.Fatalf("attempt 0 = %s", got)
	}
	if got := nextBackoff(time.Second, 3); got != 8*time.Second {
		t.Fatalf("attempt 3 = %s", got)
	}
	if got := nextBackoff(time.Second, 50); got != time.Minute {
		t.Fatalf("attempt 50 = %s, want cap", got)
	}
}
