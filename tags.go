package ticktock

import (
	"sort"
	"strings"
)

// metricTagName is the reserved tag key carrying the metric name on the
// wire. It never appears in a TagList.
const metricTagName = "metric"

// Tag is a single key/value label on a series or query.
type Tag struct {
	Key   string
	Value string
}

// TagList is an ordered list of tags. Query tag values may be "*" or end
// in "*" to request wildcard matching and group-by on that key.
type TagList []Tag

// Get returns the value for key and whether it is present.
func (tl TagList) Get(key string) (string, bool) {
	for _, t := range tl {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (tl TagList) Has(key string) bool {
	_, ok := tl.Get(key)
	return ok
}

// Set replaces the value for key, appending the tag if absent.
func (tl TagList) Set(key, value string) TagList {
	for i, t := range tl {
		if t.Key == key {
			tl[i].Value = value
			return tl
		}
	}
	return append(tl, Tag{Key: key, Value: value})
}

// Remove deletes key from the list if present.
func (tl TagList) Remove(key string) TagList {
	for i, t := range tl {
		if t.Key == key {
			return append(tl[:i], tl[i+1:]...)
		}
	}
	return tl
}

// Clone returns a deep copy of the list.
func (tl TagList) Clone() TagList {
	if len(tl) == 0 {
		return nil
	}
	out := make(TagList, len(tl))
	copy(out, tl)
	return out
}

// Sorted returns a copy of the list ordered by key.
func (tl TagList) Sorted() TagList {
	out := tl.Clone()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Map converts the list into a map. Later duplicates win.
func (tl TagList) Map() map[string]string {
	if len(tl) == 0 {
		return nil
	}
	m := make(map[string]string, len(tl))
	for _, t := range tl {
		m[t.Key] = t.Value
	}
	return m
}

// TagListFromMap builds a key-ordered TagList from a map.
func TagListFromMap(m map[string]string) TagList {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tl := make(TagList, 0, len(m))
	for _, k := range keys {
		tl = append(tl, Tag{Key: k, Value: m[k]})
	}
	return tl
}

// isStarValue reports whether a query tag value requests wildcard matching,
// either the bare "*" or a trailing-"*" prefix form.
func isStarValue(v string) bool {
	return strings.HasSuffix(v, "*")
}

// matchTagValue reports whether a series value satisfies a query value.
// "*" matches any value; "prefix*" matches values beginning with prefix
// (case-sensitive); anything else requires exact equality.
func matchTagValue(queryValue, seriesValue string) bool {
	if queryValue == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(queryValue, "*"); ok {
		return strings.HasPrefix(seriesValue, prefix)
	}
	return queryValue == seriesValue
}

// matchTags reports whether a series' tags satisfy every query tag.
// A key missing on the series never matches. Order-independent.
func matchTags(seriesTags, queryTags TagList) bool {
	for _, qt := range queryTags {
		sv, ok := seriesTags.Get(qt.Key)
		if !ok || !matchTagValue(qt.Value, sv) {
			return false
		}
	}
	return true
}

// seriesKey builds the stable identity of a series from its metric and
// canonical (key-ordered) tags. Format: metric|k1=v1,k2=v2.
func seriesKey(metric string, tags TagList) string {
	if len(tags) == 0 {
		return metric
	}
	sorted := tags.Sorted()
	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte('|')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// parseInlineTags parses the inline tag expression of a metric token:
// {k1=v1,k2=v2}. Values may be quoted; whitespace is not allowed in the
// unquoted form.
func parseInlineTags(expr string) (TagList, error) {
	body := strings.TrimPrefix(expr, "{")
	body = strings.TrimSuffix(body, "}")
	if body == "" {
		return nil, nil
	}
	var tags TagList
	for _, pair := range strings.Split(body, ",") {
		if !strings.Contains(pair, `"`) && strings.ContainsAny(pair, " \t\n") {
			return nil, newQueryError(ErrBadRequest,
				"whitespace in tag expression: "+expr, nil)
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return nil, newQueryError(ErrBadRequest,
				"malformed tag expression: "+expr, nil)
		}
		k = strings.Trim(k, `"`)
		v = strings.Trim(v, `"`)
		tags = append(tags, Tag{Key: k, Value: v})
	}
	return tags, nil
}
