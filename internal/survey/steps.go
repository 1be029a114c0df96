// Package survey implements the satisfaction survey session manager: a
// capacity-bounded table of per-chat sessions walking a fixed questionnaire,
// with a per-session timeout and a periodic eligibility sweep.
package survey

// Option is one selectable answer for a choice step.
type Option struct {
	Label string
	Value string
}

// Step describes one survey question. Exactly one of the three shapes
// applies: single-choice (Options, !Multiple), multi-select (Options,
// Multiple), or open free text (Open).
type Step struct {
	Key      string
	Question string
	Options  []Option
	Multiple bool
	Open     bool
}

// doneValue finalizes a multi-select step.
const doneValue = "done"

var ratingOptions = []Option{
	{Label: "1", Value: "1"},
	{Label: "2", Value: "2"},
	{Label: "3", Value: "3"},
	{Label: "4", Value: "4"},
	{Label: "5", Value: "5"},
}

// Steps is the fixed questionnaire for the current survey.
var Steps = []Step{
	{
		Key: "rateCalories",
		Question: "Help us improve this service!\n" +
			"Please take a short survey.\n\n" +
			"1️⃣ Rate \"Calorie calculation\"",
		Options: ratingOptions,
	},
	{
		Key:      "rateMenu",
		Question: "2️⃣ Rate \"Daily menu generation\"",
		Options:  ratingOptions,
	},
	{
		Key:      "rateRecipes",
		Question: "3️⃣ Rate \"Cooking recipes\"",
		Options:  ratingOptions,
	},
	{
		Key:      "ratePrefs",
		Question: "4️⃣ Rate \"Favorite/disliked foods\"",
		Options:  ratingOptions,
	},
	{
		Key:      "functions",
		Question: "5️⃣ Which features would you like to see? (Pick up to 3)",
		Options: []Option{
			{Label: "Saving recipes", Value: "f1"},
			{Label: "Shopping list", Value: "f2"},
			{Label: "Weekly menu", Value: "f3"},
			{Label: "Macronutrients", Value: "f4"},
			{Label: "Dish ratings", Value: "f5"},
			{Label: "Meal reminders", Value: "f6"},
			{Label: "Fitness trackers", Value: "f7"},
		},
		Multiple: true,
	},
	{
		Key:      "formats",
		Question: "6️⃣ Most convenient menu format? (Pick several)",
		Options: []Option{
			{Label: "Text in chat", Value: "m1"},
			{Label: "PDF file", Value: "m2"},
			{Label: "Google Sheets", Value: "m3"},
			{Label: "Buttons in chat", Value: "m4"},
			{Label: "Interactive menu", Value: "m5"},
		},
		Multiple: true,
	},
	{
		Key:      "difficulties",
		Question: "7️⃣ What difficulties did you face when eating by the menu?",
		Open:     true,
	},
}
