package ticktock

import (
	"testing"
	"time"
)

func TestStreamHubPublish(t *testing.T) {
	hub := NewStreamHub(DefaultStreamConfig(), &Stats{})
	sub := hub.subscribe(streamSubscribe{Metric: "cpu", Tags: map[string]string{"host": "a"}})
	defer hub.unsubscribe(sub)

	hub.Publish("cpu", TagList{{Key: "host", Value: "a"}}, DataPoint{1, 10})
	hub.Publish("cpu", TagList{{Key: "host", Value: "b"}}, DataPoint{2, 20})
	hub.Publish("mem", TagList{{Key: "host", Value: "a"}}, DataPoint{3, 30})

	select {
	case pt := <-sub.ch:
		if pt.Metric != "cpu" || pt.Value != 10 || pt.Timestamp != 1 {
			t.Errorf("got %+v", pt)
		}
	case <-time.After(time.Second):
		t.Fatal("matching point never delivered")
	}

	select {
	case pt := <-sub.ch:
		t.Errorf("unexpected extra point %+v", pt)
	default:
	}
}

func TestStreamHubWildcardSubscription(t *testing.T) {
	hub := NewStreamHub(DefaultStreamConfig(), nil)
	sub := hub.subscribe(streamSubscribe{Metric: "cpu", Tags: map[string]string{"host": "web*"}})
	defer hub.unsubscribe(sub)

	hub.Publish("cpu", TagList{{Key: "host", Value: "web-1"}}, DataPoint{1, 1})
	hub.Publish("cpu", TagList{{Key: "host", Value: "db-1"}}, DataPoint{2, 2})

	select {
	case pt := <-sub.ch:
		if pt.Tags["host"] != "web-1" {
			t.Errorf("got %+v", pt)
		}
	case <-time.After(time.Second):
		t.Fatal("wildcard subscription missed its point")
	}
	select {
	case pt := <-sub.ch:
		t.Errorf("non-matching point delivered: %+v", pt)
	default:
	}
}

func TestStreamHubDropsWhenFull(t *testing.T) {
	stats := &Stats{}
	cfg := DefaultStreamConfig()
	cfg.BufferSize = 1
	hub := NewStreamHub(cfg, stats)
	sub := hub.subscribe(streamSubscribe{Metric: "cpu"})
	defer hub.unsubscribe(sub)

	hub.Publish("cpu", nil, DataPoint{1, 1})
	hub.Publish("cpu", nil, DataPoint{2, 2}) // buffer full, dropped

	if n := stats.streamDropped.Load(); n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
}

func TestStreamHubDisabled(t *testing.T) {
	cfg := DefaultStreamConfig()
	cfg.Enabled = false
	hub := NewStreamHub(cfg, nil)
	sub := hub.subscribe(streamSubscribe{Metric: "cpu"})

	hub.Publish("cpu", nil, DataPoint{1, 1})
	select {
	case pt := <-sub.ch:
		t.Errorf("disabled hub delivered %+v", pt)
	default:
	}
}
