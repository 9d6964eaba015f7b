package crypto

import (
	"encoding/json"
	"testing"
)

func TestCanonicalizeOrdersAndStripsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{
			"z": nil,
			"y": true,
		},
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":1,"b":"value","d":{"y":true}}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	input := map[string]any{
		"actor":  map[string]any{"id": "alice", "type": "user"},
		"action": "code.commit",
		"seq":    int64(7),
	}

	first, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	second, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonical form not stable:\n%s\n%s", first, second)
	}
	if DigestWithPrefix(first) != DigestWithPrefix(second) {
		t.Fatalf("digest not stable")
	}
}

func TestCanonicalizeRejectsFloat(t *testing.T) {
	if _, err := Canonicalize(1.25); err != ErrFloatNotAllowed {
		t.Fatalf("expected ErrFloatNotAllowed, got %v", err)
	}
	if _, err := Canonicalize(json.Number("1.25")); err != ErrFloatNotAllowed {
		t.Fatalf("expected ErrFloatNotAllowed for json.Number, got %v", err)
	}
}

func TestCanonicalizeIntegerNumber(t *testing.T) {
	got, err := Canonicalize(json.Number("42"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	composed := map[string]any{"text": "\u00e9"}
	decomposed := map[string]any{"text": "e\u0301"}

	a, err := Canonicalize(composed)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	b, err := Canonicalize(decomposed)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected NFC-equal forms, got %s vs %s", a, b)
	}
}

func TestCanonicalizeRejectsNonStringKeys(t *testing.T) {
	if _, err := Canonicalize(map[int]any{1: "x"}); err != ErrNonStringMapKey {
		t.Fatalf("expected ErrNonStringMapKey, got %v", err)
	}
}

func TestCanonicalizeKeyCollision(t *testing.T) {
	input := map[string]any{
		"\u00e9": 1,
		"e\u0301": 2,
	}
	if _, err := Canonicalize(input); err != ErrKeyCollision {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestCanonicalizeNilSlice(t *testing.T) {
	var s []string
	got, err := Canonicalize(s)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "null" {
		t.Fatalf("expected null, got %s", got)
	}
}
