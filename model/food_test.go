package model

import "testing"

func TestIsValidMealType(t *testing.T) {
	cases := []struct {
		in   string
		want MealType
		ok   bool
	}{
		{"breakfast", MealBreakfast, true},
		{" Breakfast ", MealBreakfast, true},
		{"LUNCH", MealLunch, true},
		{"dinner", MealDinner, true},
		{"snack", MealSnack, true},
		{"brunch", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := IsValidMealType(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("IsValidMealType(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNewFoodEntry_InvalidMealType(t *testing.T) {
	_, ok := NewFoodEntry("user1", "brunch", NormalizeFoodsLogged([]string{"eggs"}), nil)
	if ok {
		t.Fatal("expected NewFoodEntry to reject an invalid meal type")
	}
}

func TestNewFoodEntry_EmptyFoods(t *testing.T) {
	_, ok := NewFoodEntry("user1", "breakfast", nil, nil)
	if ok {
		t.Fatal("expected NewFoodEntry to reject an empty foods list")
	}
}

func TestNewFoodEntry_SumsMacros(t *testing.T) {
	foods := []FoodItem{
		{Name: "oatmeal", Calories: 150, Protein: 5, Carbs: 27, Fat: 3},
		{Name: "berries", Calories: 50, Protein: 1, Carbs: 12, Fat: 0},
	}
	entry, ok := NewFoodEntry("user1", "breakfast", foods, nil)
	if !ok {
		t.Fatal("expected NewFoodEntry to succeed")
	}
	if entry.TotalCalories != 200 {
		t.Errorf("TotalCalories = %v, want 200", entry.TotalCalories)
	}
	if entry.TotalProtein != 6 {
		t.Errorf("TotalProtein = %v, want 6", entry.TotalProtein)
	}
}

func TestNewFoodEntry_TotalCaloriesOverride(t *testing.T) {
	foods := []FoodItem{{Name: "oatmeal", Calories: 150}}
	override := 999.0
	entry, ok := NewFoodEntry("user1", "breakfast", foods, &override)
	if !ok {
		t.Fatal("expected NewFoodEntry to succeed")
	}
	if entry.TotalCalories != 999 {
		t.Errorf("TotalCalories = %v, want override value 999", entry.TotalCalories)
	}
}

func TestNormalizeFoodsLogged(t *testing.T) {
	items := NormalizeFoodsLogged([]string{"oatmeal", "", "berries"})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "oatmeal" || items[0].Quantity != 1 {
		t.Errorf("unexpected first item: %+v", items[0])
	}
}
