package model

import (
	"context"
	"testing"
)

func TestCursorMergeFields(t *testing.T) {
	c := NewCursor()
	c.MergeFields(map[string]string{"mealType": "breakfast", "foodsLogged": ""})
	c.MergeFields(map[string]string{"foodsLogged": "oatmeal"})

	if c.CompletedFields["mealType"] != "breakfast" {
		t.Errorf("mealType = %q, want breakfast", c.CompletedFields["mealType"])
	}
	if c.CompletedFields["foodsLogged"] != "oatmeal" {
		t.Errorf("foodsLogged = %q, want oatmeal (blank values must not overwrite)", c.CompletedFields["foodsLogged"])
	}
}

func TestWithUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	got, ok := GetUserIDFromContext(ctx)
	if !ok || got != "user-42" {
		t.Errorf("GetUserIDFromContext = (%q, %v), want (user-42, true)", got, ok)
	}
}

func TestWithSessionIDRoundTrip(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s1")
	got, ok := GetSessionIDFromContext(ctx)
	if !ok || got != "s1" {
		t.Errorf("GetSessionIDFromContext = (%q, %v), want (s1, true)", got, ok)
	}

	if _, ok := GetSessionIDFromContext(context.Background()); ok {
		t.Error("expected no sessionId on a bare context")
	}
}
