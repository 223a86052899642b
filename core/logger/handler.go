package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

type encoding uint8

const (
	encKV encoding = iota
	encJSON
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// handler renders each record as one flat line, key=value pairs or a JSON
// object, with the ranked keys first.
type handler struct {
	gate   *gate
	out    *sink
	enc    encoding
	rank   map[string]int
	preset fields
	prefix string
}

func newHandler(g *gate, out *sink, enc encoding, order []string) *handler {
	rank := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &handler{gate: g, out: out, enc: enc, rank: rank}
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.gate.enabled(l)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	f := make(fields, len(h.preset)+r.NumAttrs()+8)
	for k, v := range h.preset {
		f[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	f.fillContext(ctx)
	f.finish(r, h.enc == encJSON)
	return h.out.write(h.encode(f))
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = make(fields, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		clone.preset[k] = v
	}
	for _, a := range attrs {
		clone.preset.add(h.prefix, a)
	}
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func (h *handler) encode(f fields) []byte {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := h.rank[keys[i]]
		rj, jok := h.rank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})

	var b bytes.Buffer
	if h.enc == encJSON {
		writeJSON(&b, keys, f)
	} else {
		writeKV(&b, keys, f)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// fields is one record flattened to dotted keys.
type fields map[string]any

func (f fields) add(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if key, val := render(key, a.Value); val != nil {
		f[key] = val
	}
}

func (f fields) setDefault(key string, val any) {
	if _, ok := f[key]; !ok {
		f[key] = val
	}
}

func (f fields) fillContext(ctx context.Context) {
	m := metaFrom(ctx)
	if m.rid != "" {
		f.setDefault("rid", m.rid)
	}
	if m.conversation != "" {
		f.setDefault("conversation_id", m.conversation)
	}
	if m.handler != "" {
		f.setDefault("handler", m.handler)
	}
	if m.updateID != 0 {
		f.setDefault("update_id", int64(m.updateID))
	}
	if m.userID != 0 {
		f.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		f.setDefault("chat_id", m.chatID)
	}
}

// finish stamps time and level, fills component and event, then scrubs
// values. full adds the JSON-only keys.
func (f fields) finish(r slog.Record, full bool) {
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(tsLayout)
	f["level"] = r.Level.String()
	if full {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	if s, _ := f["event"].(string); s == "" {
		f["event"] = cmp.Or(r.Message, "unknown")
	}
	if s, _ := f["component"].(string); s == "" {
		f["component"] = "app"
	}

	if rid, _ := f["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			f["rid"] = short
			if full {
				f.setDefault("rid_full", rid)
			}
		}
	}
	if s, ok := f["status"].(string); ok {
		f["status"] = strings.ToLower(s)
	}
	if s, ok := f["outcome"].(string); ok {
		if s = strings.ToLower(s); outcomes[s] {
			f["outcome"] = s
		} else {
			delete(f, "outcome")
		}
	}
	for _, k := range secretKeys {
		if s, ok := f[k].(string); ok {
			f[k] = Redact(s)
		}
	}
	for k, v := range f {
		if s, ok := v.(string); ok && s == "" {
			delete(f, k)
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// render converts v to a scalar the encoders understand. Durations become
// whole milliseconds under a key ending in _ms; nil values are dropped.
func render(key string, v slog.Value) (string, any) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String())
	case slog.KindBool:
		return key, v.Bool()
	case slog.KindInt64:
		return key, v.Int64()
	case slog.KindUint64:
		return key, v.Uint64()
	case slog.KindFloat64:
		return key, v.Float64()
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano)
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil
	case error:
		return key, strings.TrimSpace(x.Error())
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds()
	case fmt.Stringer:
		return key, x.String()
	default:
		return key, fmt.Sprint(x)
	}
}

func durationKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func writeJSON(b *bytes.Buffer, keys []string, f fields) {
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		val, err := json.Marshal(f[k])
		if err != nil {
			// NaN and Inf have no JSON form.
			val, _ = json.Marshal(fmt.Sprint(f[k]))
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
}

func writeKV(b *bytes.Buffer, keys []string, f fields) {
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		s := fmt.Sprint(f[k])
		if strings.ContainsFunc(s, needsQuote) {
			s = strconv.Quote(s)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s)
	}
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
