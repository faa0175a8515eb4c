package bound

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestString(t *testing.T) {
	t.Run("within_limit_unchanged", func(t *testing.T) {
		if got := String("hello", 10); got != "hello" {
			t.Fatalf("String() = %q; want %q", got, "hello")
		}
	})

	t.Run("exact_limit_unchanged", func(t *testing.T) {
		if got := String("hello", 5); got != "hello" {
			t.Fatalf("String() = %q; want %q", got, "hello")
		}
	})

	t.Run("over_limit_truncates_and_marks", func(t *testing.T) {
		got := String(strings.Repeat("a", 20), 5)
		want := "aaaaa" + Marker
		if got != want {
			t.Fatalf("String() = %q; want %q", got, want)
		}
	})

	t.Run("zero_limit_disables_bound", func(t *testing.T) {
		in := strings.Repeat("a", 20)
		if got := String(in, 0); got != in {
			t.Fatalf("String() = %q; want input unchanged", got)
		}
	})

	t.Run("cut_stays_on_rune_boundary", func(t *testing.T) {
		got := String("😀😀😀", 5)
		if !utf8.ValidString(got) {
			t.Fatalf("String() produced invalid UTF-8: %q", got)
		}
		if got != "😀"+Marker {
			t.Fatalf("String() = %q; want one emoji plus marker", got)
		}
	})
}

func TestValue(t *testing.T) {
	t.Run("bounds_nested_strings", func(t *testing.T) {
		in := map[string]any{
			"msg":  strings.Repeat("x", 30),
			"tags": []any{strings.Repeat("y", 30), "ok"},
			"n":    float64(42),
		}
		out, ok := Value(in, 10).(map[string]any)
		if !ok {
			t.Fatalf("Value() returned %T; want map", out)
		}
		if out["msg"] != strings.Repeat("x", 10)+Marker {
			t.Fatalf("msg = %q; want truncated", out["msg"])
		}
		tags := out["tags"].([]any)
		if tags[0] != strings.Repeat("y", 10)+Marker {
			t.Fatalf("tags[0] = %q; want truncated", tags[0])
		}
		if tags[1] != "ok" {
			t.Fatalf("tags[1] = %q; want unchanged", tags[1])
		}
		if out["n"] != float64(42) {
			t.Fatalf("n = %v; want passthrough", out["n"])
		}
	})

	t.Run("does_not_mutate_input", func(t *testing.T) {
		in := map[string]any{"msg": strings.Repeat("x", 30)}
		Value(in, 10)
		if in["msg"] != strings.Repeat("x", 30) {
			t.Fatalf("input mutated: %q", in["msg"])
		}
	})

	t.Run("deep_nesting_truncated_at_ceiling", func(t *testing.T) {
		var v any = "bottom"
		for i := 0; i < 150; i++ {
			v = map[string]any{"k": v}
		}

		out := Value(v, 0)

		depth := 0
		cur := out
		for {
			m, ok := cur.(map[string]any)
			if !ok {
				break
			}
			cur = m["k"]
			depth++
		}
		if depth != MaxDepth {
			t.Fatalf("output depth = %d; want %d", depth, MaxDepth)
		}
		if cur != DepthSentinel {
			t.Fatalf("leaf = %v; want depth sentinel", cur)
		}
	})

	t.Run("self_referential_structure_terminates", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = m

		out := Value(m, 0)

		depth := 0
		cur := out
		for {
			mm, ok := cur.(map[string]any)
			if !ok {
				break
			}
			cur = mm["self"]
			depth++
		}
		if cur != DepthSentinel {
			t.Fatalf("leaf = %v; want depth sentinel", cur)
		}
		if depth > MaxDepth {
			t.Fatalf("output depth = %d; want <= %d", depth, MaxDepth)
		}
	})
}

func TestSequenceBySize(t *testing.T) {
	ident := func(v any) any { return v }

	t.Run("keeps_exact_prefix_within_budget", func(t *testing.T) {
		items := make([]any, 10)
		for i := range items {
			items[i] = map[string]any{"payload": fmt.Sprintf("%02d", i) + strings.Repeat("x", 2000)}
		}
		capStrings := func(v any) any { return Value(v, 1000) }

		out := SequenceBySize(items, 5000, capStrings)

		if len(out) == 0 || len(out) == len(items) {
			t.Fatalf("kept %d of %d items; want a strict non-empty prefix", len(out), len(items))
		}
		total := 0
		for i, el := range out {
			payload := el.(map[string]any)["payload"].(string)
			if !strings.HasPrefix(payload, fmt.Sprintf("%02d", i)) {
				t.Fatalf("item %d out of order: %q", i, payload[:4])
			}
			data, err := json.Marshal(el)
			if err != nil {
				t.Fatalf("marshal item %d: %v", i, err)
			}
			total += len(data)
		}
		if total > 5000 {
			t.Fatalf("kept %d bytes; want <= 5000", total)
		}
		next, _ := json.Marshal(capStrings(items[len(out)]))
		if total+len(next) <= 5000 {
			t.Fatalf("dropped an item that still fit: %d + %d <= 5000", total, len(next))
		}
	})

	t.Run("zero_budget_disables_bound", func(t *testing.T) {
		items := []any{"a", "b", "c"}
		out := SequenceBySize(items, 0, ident)
		if len(out) != 3 {
			t.Fatalf("kept %d items; want 3", len(out))
		}
	})

	t.Run("oversized_first_item_yields_empty", func(t *testing.T) {
		items := []any{strings.Repeat("x", 100), "tiny"}
		out := SequenceBySize(items, 10, ident)
		if len(out) != 0 {
			t.Fatalf("kept %d items; want 0", len(out))
		}
	})
}

func TestProcess(t *testing.T) {
	lim := Limits{MaxStringLen: 10, MaxBatchBytes: 200}

	t.Run("unparseable_input_becomes_bounded_string", func(t *testing.T) {
		out := Process([]byte("<<<not structured at all"+strings.Repeat("!", 50)), lim)
		s, ok := out.(string)
		if !ok {
			t.Fatalf("Process() returned %T; want string", out)
		}
		if !strings.HasSuffix(s, Marker) {
			t.Fatalf("Process() = %q; want truncated string", s)
		}
	})

	t.Run("array_payload_keeps_prefix", func(t *testing.T) {
		raw, _ := json.Marshal([]any{
			map[string]any{"i": 0, "p": strings.Repeat("a", 60)},
			map[string]any{"i": 1, "p": strings.Repeat("b", 60)},
			map[string]any{"i": 2, "p": strings.Repeat("c", 60)},
			map[string]any{"i": 3, "p": strings.Repeat("d", 60)},
			map[string]any{"i": 4, "p": strings.Repeat("e", 60)},
		})
		out, ok := Process(raw, Limits{MaxStringLen: 10, MaxBatchBytes: 150}).([]any)
		if !ok {
			t.Fatalf("Process() returned %T; want slice", out)
		}
		if len(out) == 0 || len(out) == 5 {
			t.Fatalf("kept %d of 5 items; want a strict non-empty prefix", len(out))
		}
		first := out[0].(map[string]any)
		if first["i"] != float64(0) {
			t.Fatalf("first kept item = %v; want index 0", first["i"])
		}
	})

	t.Run("object_payload_bounded_recursively", func(t *testing.T) {
		raw := []byte(`{"level":"error","msg":"` + strings.Repeat("z", 40) + `"}`)
		out, ok := Process(raw, lim).(map[string]any)
		if !ok {
			t.Fatalf("Process() returned %T; want map", out)
		}
		if out["msg"] != strings.Repeat("z", 10)+Marker {
			t.Fatalf("msg = %q; want truncated", out["msg"])
		}
		if out["level"] != "error" {
			t.Fatalf("level = %q; want unchanged", out["level"])
		}
	})

	t.Run("oversized_object_degrades_to_capped_string", func(t *testing.T) {
		big := map[string]any{}
		for i := 0; i < 50; i++ {
			big[fmt.Sprintf("key_%02d", i)] = "val"
		}
		raw, _ := json.Marshal(big)
		out := Process(raw, lim)
		s, ok := out.(string)
		if !ok {
			t.Fatalf("Process() returned %T; want string fallback", out)
		}
		if len(s) > lim.MaxBatchBytes {
			t.Fatalf("fallback is %d bytes; want <= %d", len(s), lim.MaxBatchBytes)
		}
		if !strings.HasSuffix(s, Marker) {
			t.Fatalf("fallback %q lacks marker", s)
		}
	})

	t.Run("scalar_passthrough", func(t *testing.T) {
		out := Process([]byte(`42`), lim)
		if out != float64(42) {
			t.Fatalf("Process(42) = %v; want 42", out)
		}
	})
}
