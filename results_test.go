package ticktock

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func taskWithTags(tags TagList) *QueryTask {
	ts := &TimeSeries{key: seriesKey("m", tags), metric: "m", tags: tags.Sorted()}
	return &QueryTask{tsv: []*TimeSeries{ts}}
}

func TestAddQueryTaskDemotion(t *testing.T) {
	q := &Query{Metric: "cpu", Tags: TagList{{Key: "dc", Value: "east"}}}
	r := newQueryResults(q)

	r.addQueryTask(taskWithTags(TagList{{Key: "dc", Value: "east"}, {Key: "host", Value: "a"}}))
	r.addQueryTask(taskWithTags(TagList{{Key: "dc", Value: "east"}, {Key: "host", Value: "b"}}))

	if r.Tags.Has("host") {
		t.Errorf("host should be demoted, tags = %v", r.Tags)
	}
	if len(r.AggregateTags) != 1 || r.AggregateTags[0] != "host" {
		t.Errorf("aggregateTags = %v, want [host]", r.AggregateTags)
	}
	if v, _ := r.Tags.Get("dc"); v != "east" {
		t.Errorf("dc should survive, tags = %v", r.Tags)
	}

	// output tags and aggregate tags never share a key
	for _, tag := range r.Tags {
		for _, k := range r.AggregateTags {
			if tag.Key == k {
				t.Errorf("key %q present in both tags and aggregateTags", k)
			}
		}
	}
}

func TestAddQueryTaskReplacesStarValue(t *testing.T) {
	q := &Query{Metric: "cpu", Tags: TagList{{Key: "host", Value: "*"}}}
	r := newQueryResults(q)

	r.addQueryTask(taskWithTags(TagList{{Key: "host", Value: "web-1"}}))

	if v, _ := r.Tags.Get("host"); v != "web-1" {
		t.Errorf("star value not replaced: %v", r.Tags)
	}
}

func TestPrepareResponseEnvelope(t *testing.T) {
	r := &QueryResults{
		Metric: "cpu",
		Dps:    DataPointVector{{0, 2}},
	}

	body, err := PrepareResponse([]*QueryResults{r}, 0)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := `[{"metric":"cpu","tags":{},"aggregateTags":[],"dps":{"0":2.0}}]`
	if string(body) != want {
		t.Errorf("body = %s\nwant  %s", body, want)
	}

	// The envelope must be valid JSON.
	var parsed []map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Errorf("response is not valid JSON: %v", err)
	}
}

func TestPrepareResponseEmpty(t *testing.T) {
	body, err := PrepareResponse(nil, 0)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if string(body) != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestPrepareResponseSuppressesEmptyResults(t *testing.T) {
	results := []*QueryResults{
		{Metric: "empty"},
		{Metric: "cpu", Dps: DataPointVector{{1, 1}}},
	}

	body, err := PrepareResponse(results, 0)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(string(body), "empty") {
		t.Errorf("empty result serialized: %s", body)
	}
	if !strings.Contains(string(body), "cpu") {
		t.Errorf("non-empty result missing: %s", body)
	}
}

func TestPrepareResponseOversize(t *testing.T) {
	var dps DataPointVector
	for i := 0; i < 1000; i++ {
		dps = append(dps, DataPoint{Timestamp: Timestamp(i), Value: float64(i)})
	}
	r := &QueryResults{Metric: "cpu", Dps: dps}

	_, err := PrepareResponse([]*QueryResults{r}, 64)
	if !errors.Is(err, ErrOversizeResponse) {
		t.Errorf("err = %v, want ErrOversizeResponse", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v        float64
		nullFill bool
		want     string
	}{
		{2, false, "2.0"},
		{2.5, false, "2.5"},
		{-3, false, "-3.0"},
		{0.0625, false, "0.0625"},
		{math.NaN(), false, "NaN"},
		{math.NaN(), true, "null"},
	}

	for _, tt := range tests {
		if got := formatValue(tt.v, tt.nullFill); got != tt.want {
			t.Errorf("formatValue(%v, %v) = %q, want %q", tt.v, tt.nullFill, got, tt.want)
		}
	}
}

func TestNullFillSerialization(t *testing.T) {
	r := &QueryResults{
		Metric:   "cpu",
		Dps:      DataPointVector{{0, 1}, {10, math.NaN()}},
		nullFill: true,
	}

	body, err := PrepareResponse([]*QueryResults{r}, 0)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(string(body), `"10":null`) {
		t.Errorf("null fill not serialized as JSON null: %s", body)
	}
	var parsed []map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Errorf("null-filled response is not valid JSON: %v", err)
	}
}
