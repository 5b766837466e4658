package docstore

import "testing"

func TestFilterEq(t *testing.T) {
	doc := Document{
		FieldID:   "u-1",
		FieldType: "User",
		"normalizedUserName": "ADA",
		"accessFailedCount":  3,
	}

	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"match", And(Eq(FieldType, "User")), true},
		{"mismatch", And(Eq(FieldType, "Role")), false},
		{"missing field", And(Eq("nope", "x")), false},
		{"conjunction", And(Eq(FieldType, "User"), Eq("normalizedUserName", "ADA")), true},
		{"conjunction one fails", And(Eq(FieldType, "User"), Eq("normalizedUserName", "BOB")), false},
		{"empty matches all", nil, true},
		// Tras un ciclo JSON los números llegan como float64; Eq no debe
		// distinguir 3 de 3.0.
		{"numeric loose", And(Eq("accessFailedCount", float64(3))), true},
	}
	for _, tc := range cases {
		if got := tc.f.Matches(doc); got != tc.want {
			t.Errorf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterElemMatch(t *testing.T) {
	doc := Document{
		FieldID: "u-1",
		"logins": []any{
			map[string]any{"loginProvider": "google", "providerKey": "g-1"},
			map[string]any{"loginProvider": "github", "providerKey": "h-2"},
		},
	}

	f := And(ElemMatch("logins", map[string]any{"loginProvider": "github", "providerKey": "h-2"}))
	if !f.Matches(doc) {
		t.Fatal("expected elemMatch to find the github login")
	}

	f = And(ElemMatch("logins", map[string]any{"loginProvider": "github", "providerKey": "g-1"}))
	if f.Matches(doc) {
		t.Fatal("elemMatch must require all pairs on the same element")
	}

	f = And(ElemMatch("claims", map[string]any{"type": "scope"}))
	if f.Matches(doc) {
		t.Fatal("missing array must not match")
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{
		FieldID: "u-1",
		"claims": []any{map[string]any{"type": "scope", "value": "read"}},
	}

	clone := doc.Clone()
	clone["claims"].([]any)[0].(map[string]any)["value"] = "write"

	orig := doc["claims"].([]any)[0].(map[string]any)["value"]
	if orig != "read" {
		t.Fatalf("clone shares nested state with original: %v", orig)
	}
}
