package ticktock

import (
	"reflect"
	"testing"
)

func TestMatchTagValue(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		series string
		want   bool
	}{
		{"exact match", "web-1", "web-1", true},
		{"exact mismatch", "web-1", "web-2", false},
		{"bare star matches anything", "*", "anything", true},
		{"prefix star matches", "web*", "web-1", true},
		{"prefix star mismatch", "web*", "db-1", false},
		{"prefix star is case sensitive", "Web*", "web-1", false},
		{"empty prefix star matches all", "*", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchTagValue(tt.query, tt.series); got != tt.want {
				t.Errorf("matchTagValue(%q, %q) = %v, want %v", tt.query, tt.series, got, tt.want)
			}
		})
	}
}

func TestMatchTags(t *testing.T) {
	series := TagList{{Key: "host", Value: "web-1"}, {Key: "dc", Value: "us-east"}}

	tests := []struct {
		name  string
		query TagList
		want  bool
	}{
		{"empty query matches", nil, true},
		{"exact", TagList{{Key: "host", Value: "web-1"}}, true},
		{"wildcard", TagList{{Key: "host", Value: "*"}}, true},
		{"prefix", TagList{{Key: "host", Value: "web*"}}, true},
		{"missing key never matches", TagList{{Key: "rack", Value: "*"}}, false},
		{"one mismatch fails all", TagList{{Key: "host", Value: "web-1"}, {Key: "dc", Value: "eu*"}}, false},
		{"order independent", TagList{{Key: "dc", Value: "us-east"}, {Key: "host", Value: "web*"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchTags(series, tt.query); got != tt.want {
				t.Errorf("matchTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeriesKey(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		tags   TagList
		want   string
	}{
		{"no tags", "cpu", nil, "cpu"},
		{"single tag", "cpu", TagList{{Key: "host", Value: "a"}}, "cpu|host=a"},
		{
			"tags sorted by key",
			"net",
			TagList{{Key: "host", Value: "a"}, {Key: "dev", Value: "eth0"}},
			"net|dev=eth0,host=a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seriesKey(tt.metric, tt.tags); got != tt.want {
				t.Errorf("seriesKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInlineTags(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    TagList
		wantErr bool
	}{
		{
			name: "two pairs",
			expr: "{host=a,dc=east}",
			want: TagList{{Key: "host", Value: "a"}, {Key: "dc", Value: "east"}},
		},
		{
			name: "star value",
			expr: "{host=*}",
			want: TagList{{Key: "host", Value: "*"}},
		},
		{
			name: "quoted pair",
			expr: `{"host"="a"}`,
			want: TagList{{Key: "host", Value: "a"}},
		},
		{name: "empty braces", expr: "{}", want: nil},
		{name: "missing value", expr: "{host=}", wantErr: true},
		{name: "missing separator", expr: "{host}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInlineTags(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInlineTags(%q) err = %v", tt.expr, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseInlineTags(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestTagListSetRemove(t *testing.T) {
	tl := TagList{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}

	tl = tl.Set("a", "9")
	if v, _ := tl.Get("a"); v != "9" {
		t.Errorf("Set did not replace: got %q", v)
	}

	tl = tl.Set("c", "3")
	if v, _ := tl.Get("c"); v != "3" {
		t.Errorf("Set did not append: got %q", v)
	}

	tl = tl.Remove("b")
	if tl.Has("b") {
		t.Error("Remove left key behind")
	}
	if len(tl) != 2 {
		t.Errorf("len = %d, want 2", len(tl))
	}
}
