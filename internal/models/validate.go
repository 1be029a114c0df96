package models

import (
	"math"
	"unicode/utf8"
)

// Validation constants for onboarding inputs and food entries.
const (
	// MinWeight and MaxWeight bound the accepted weight in kilograms.
	MinWeight = 40
	MaxWeight = 150
	// MinHeight and MaxHeight bound the accepted height in centimeters.
	MinHeight = 100
	MaxHeight = 220
	// MinAge and MaxAge bound the accepted age in years.
	MinAge = 14
	MaxAge = 130
	// MaxFoodEntryLength is the maximum character count of a single food entry.
	MaxFoodEntryLength = 30
	// MaxCallbackBytes is the Telegram limit on callback payload size. A food
	// entry must fit behind its removal prefix within this budget, measured
	// in UTF-8 bytes rather than characters.
	MaxCallbackBytes = 64
)

// ValidWeight reports whether v is a finite weight within the onboarding range.
func ValidWeight(v float64) bool {
	return finite(v) && v >= MinWeight && v <= MaxWeight
}

// ValidHeight reports whether v is a finite height within the onboarding range.
func ValidHeight(v float64) bool {
	return finite(v) && v >= MinHeight && v <= MaxHeight
}

// ValidAge reports whether v is a finite age within the onboarding range.
func ValidAge(v float64) bool {
	return finite(v) && v >= MinAge && v <= MaxAge
}

// ValidActivityFactor reports whether v is one of the enumerated multipliers.
func ValidActivityFactor(v float64) bool {
	for _, f := range ActivityFactors {
		if v == f {
			return true
		}
	}
	return false
}

// ValidGoal reports whether g is one of the enumerated goals.
func ValidGoal(g string) bool {
	switch g {
	case GoalLoseWeight, GoalGainWeight, GoalMaintain:
		return true
	default:
		return false
	}
}

// ValidFoodEntry reports whether entry may be stored in a food list: at most
// MaxFoodEntryLength characters, and its removal callback (prefix + entry)
// at most MaxCallbackBytes UTF-8 bytes.
func ValidFoodEntry(callbackPrefix, entry string) bool {
	if entry == "" || utf8.RuneCountInString(entry) > MaxFoodEntryLength {
		return false
	}
	return len(callbackPrefix)+len(entry) <= MaxCallbackBytes
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
