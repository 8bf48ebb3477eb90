package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mood is the coarse sentiment bucket attached to a Session's context.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNeutral  Mood = "neutral"
	MoodNegative Mood = "negative"
)

// UserPreferences holds the user-tunable settings that shape conversation
// tone and scheduling.
type UserPreferences struct {
	GreetingStyle string   `bson:"greetingStyle,omitempty" json:"greetingStyle,omitempty"`
	Timezone      string   `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Restrictions  []string `bson:"restrictions,omitempty" json:"restrictions,omitempty"`
	Goals         []string `bson:"goals,omitempty" json:"goals,omitempty"`
}

// UserStats holds running aggregates surfaced in UserInfo snapshots.
type UserStats struct {
	TotalSessions int        `bson:"totalSessions" json:"totalSessions"`
	TotalMeals    int        `bson:"totalMeals" json:"totalMeals"`
	StreakDays    int        `bson:"streakDays" json:"streakDays"`
	LastActive    *time.Time `bson:"lastActive,omitempty" json:"lastActive,omitempty"`
}

// User represents a person identified by email. Created lazily on
// first contact; never deleted by the core.
type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Email       string             `bson:"email" json:"email"`
	FirstName   string             `bson:"firstName" json:"firstName"`
	LastName    string             `bson:"lastName,omitempty" json:"lastName,omitempty"`
	Preferences UserPreferences    `bson:"preferences" json:"preferences"`
	Stats       UserStats          `bson:"stats" json:"stats"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewUser builds a new User for a lowercased email, deriving a first name
// from the local-part when one isn't supplied.
func NewUser(email string) *User {
	now := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))
	return &User{
		Email:     email,
		FirstName: deriveFirstName(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// deriveFirstName takes the local-part of an email address and upper-cases
// the first letter of its first segment (segments are split on '.', '_',
// '-' and '+'), e.g. "john.doe@x.com" -> "John". An empty local-part yields
// "Friend".
func deriveFirstName(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Friend"
	}
	local = parts[0]
	return strings.ToUpper(local[:1]) + local[1:]
}

// RecordSession bumps session stats and the last-active timestamp.
func (u *User) RecordSession() {
	u.Stats.TotalSessions++
	now := time.Now()
	u.Stats.LastActive = &now
	u.UpdatedAt = now
}

// RecordMeal bumps meal stats after a FoodEntry is created.
func (u *User) RecordMeal() {
	u.Stats.TotalMeals++
	u.UpdatedAt = time.Now()
}
