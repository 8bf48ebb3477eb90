package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MealType is the fixed set of valid meal categories.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// IsValidMealType reports whether s (case-insensitive) names one of the
// fixed meal types, returning the canonical lowercase form.
func IsValidMealType(s string) (MealType, bool) {
	switch MealType(normalizeMealType(s)) {
	case MealBreakfast:
		return MealBreakfast, true
	case MealLunch:
		return MealLunch, true
	case MealDinner:
		return MealDinner, true
	case MealSnack:
		return MealSnack, true
	}
	return "", false
}

func normalizeMealType(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		if c == ' ' || c == '\t' || c == '\n' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// FoodItem is one logged food within a FoodEntry.
type FoodItem struct {
	Name     string  `bson:"name" json:"name"`
	Quantity float64 `bson:"quantity" json:"quantity"`
	Unit     string  `bson:"unit" json:"unit"`
	Calories float64 `bson:"calories,omitempty" json:"calories,omitempty"`
	Protein  float64 `bson:"protein,omitempty" json:"protein,omitempty"`
	Carbs    float64 `bson:"carbs,omitempty" json:"carbs,omitempty"`
	Fat      float64 `bson:"fat,omitempty" json:"fat,omitempty"`
}

// FoodEntry is a per-user meal ledger row, created only when an intent
// completes with a valid MealType and non-empty foods.
type FoodEntry struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID   string             `bson:"userId" json:"userId"`
	MealType MealType           `bson:"mealType" json:"mealType"`
	Foods    []FoodItem         `bson:"foods" json:"foods"`

	TotalCalories float64   `bson:"totalCalories" json:"totalCalories"`
	TotalProtein  float64   `bson:"totalProtein" json:"totalProtein"`
	TotalCarbs    float64   `bson:"totalCarbs" json:"totalCarbs"`
	TotalFat      float64   `bson:"totalFat" json:"totalFat"`
	Date          time.Time `bson:"date" json:"date"`
}

// NormalizeFoodsLogged turns the comma/plain-string form of foodsLogged
// (as emitted by the LLM) into FoodItem rows when no structured data is
// present: "{name, quantity:1, unit:''}" per named food.
func NormalizeFoodsLogged(names []string) []FoodItem {
	items := make([]FoodItem, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		items = append(items, FoodItem{Name: name, Quantity: 1, Unit: ""})
	}
	return items
}

// NewFoodEntry builds a FoodEntry, summing item macros into the entry
// totals. Returns ok=false if mealType is invalid or foods is empty, per the
// validation contract (callers must not persist in that case).
func NewFoodEntry(userID, mealTypeRaw string, foods []FoodItem, totalCalories *float64) (*FoodEntry, bool) {
	mealType, ok := IsValidMealType(mealTypeRaw)
	if !ok || len(foods) == 0 {
		return nil, false
	}

	entry := &FoodEntry{
		UserID:   userID,
		MealType: mealType,
		Foods:    foods,
		Date:     time.Now(),
	}
	for _, f := range foods {
		entry.TotalCalories += f.Calories
		entry.TotalProtein += f.Protein
		entry.TotalCarbs += f.Carbs
		entry.TotalFat += f.Fat
	}
	if totalCalories != nil {
		entry.TotalCalories = *totalCalories
	}
	return entry, true
}
