package catalog

import "testing"

func TestFreezeDeepCopiesNestedCollections(t *testing.T) {
	original := map[string]any{
		"list": []any{"a", "b"},
		"nested": map[string]any{
			"inner": []any{1, 2},
		},
	}

	frozen := Freeze(original).(map[string]any)

	// Mutate the original's nested collections.
	original["list"].([]any)[0] = "mutated"
	original["nested"].(map[string]any)["inner"].([]any)[0] = 999

	frozenList := frozen["list"].([]any)
	if frozenList[0] != "a" {
		t.Errorf("frozen list leaked original mutation: %v", frozenList)
	}
	frozenInner := frozen["nested"].(map[string]any)["inner"].([]any)
	if frozenInner[0] != 1 {
		t.Errorf("frozen nested list leaked original mutation: %v", frozenInner)
	}
}

func TestFreezeScalarsPassThrough(t *testing.T) {
	if Freeze(5) != 5 {
		t.Errorf("expected scalar to pass through unchanged")
	}
	if Freeze("x") != "x" {
		t.Errorf("expected string to pass through unchanged")
	}
}
