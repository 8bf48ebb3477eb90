package model

import "testing"

func TestIntentBuilderResponseMergeFrom(t *testing.T) {
	r := &IntentBuilderResponse{Fields: map[string]string{"mealType": "breakfast"}}

	r.MergeFrom("I had oatmeal", "What did you eat?", map[string]string{"foodsLogged": "oatmeal"}, false)

	if r.Fields["mealType"] != "breakfast" {
		t.Errorf("mealType should survive merge, got %q", r.Fields["mealType"])
	}
	if r.Fields["foodsLogged"] != "oatmeal" {
		t.Errorf("foodsLogged = %q, want oatmeal", r.Fields["foodsLogged"])
	}
	if r.LatestTranscript != "I had oatmeal" {
		t.Errorf("LatestTranscript = %q, want %q", r.LatestTranscript, "I had oatmeal")
	}
	if r.IsCompleted {
		t.Fatal("IsCompleted should remain false")
	}
}

func TestIntentBuilderResponseMergeFromBlankNeverOverwrites(t *testing.T) {
	r := &IntentBuilderResponse{Fields: map[string]string{"foodsLogged": "oatmeal"}}

	r.MergeFrom("", "", map[string]string{"foodsLogged": ""}, false)

	if r.Fields["foodsLogged"] != "oatmeal" {
		t.Errorf("blank incoming value must not overwrite existing one, got %q", r.Fields["foodsLogged"])
	}
}

func TestIntentBuilderResponseMergeFromCompletionNeverFlipsBack(t *testing.T) {
	r := &IntentBuilderResponse{IsCompleted: true}

	r.MergeFrom("", "", nil, false)

	if !r.IsCompleted {
		t.Fatal("isCompleted must only ever flip false->true, never back")
	}
}
