package service

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"gamify-journal/internal/domain"
)

func topic(keywords ...string) domain.Predicate {
	return domain.Predicate{Kind: domain.PredicateTopic, Keywords: keywords}
}

// builtinTemplates is the catalog seeded at startup.
var builtinTemplates = []domain.QuestTemplate{
	{
		Key:          "daily-chronicler",
		Title:        "Daily Chronicler",
		Description:  "Write a journal entry for 5 consecutive days.",
		Predicate:    domain.Predicate{Kind: domain.PredicateStreak, Count: 5},
		RewardXP:     150,
		DurationDays: 14,
	},
	{
		Key:          "verbose-explorer",
		Title:        "Verbose Explorer",
		Description:  "Write a journal entry with at least 300 words.",
		Predicate:    domain.Predicate{Kind: domain.PredicateWordCount, MinWords: 300},
		RewardXP:     100,
		DurationDays: 7,
	},
	{
		Key:          "memory-lane",
		Title:        "Memory Lane",
		Description:  "Write about your favorite childhood memory.",
		Predicate:    topic("childhood memory", "childhood"),
		RewardXP:     120,
		DurationDays: 7,
	},
	{
		Key:         "deep-reflection",
		Title:       "Deep Reflection",
		Description: "Answer these reflection questions: What are you grateful for today? What challenged you? What did you learn?",
		Predicate: domain.Predicate{Kind: domain.PredicateAll, Children: []domain.Predicate{
			topic("grateful", "gratitude"),
			topic("challeng"),
			topic("learn"),
		}},
		RewardXP:     200,
		DurationDays: 7,
	},
	{
		Key:          "steady-scribe",
		Title:        "Steady Scribe",
		Description:  "Write 3 entries within 7 days.",
		Predicate:    domain.Predicate{Kind: domain.PredicateEntryCount, Count: 3, WindowDays: 7},
		RewardXP:     90,
		DurationDays: 7,
	},
	{
		Key:         "seasoned-adventurer",
		Title:       "Seasoned Adventurer",
		Description: "Reach level 5 after finishing Daily Chronicler and Verbose Explorer.",
		Predicate: domain.Predicate{Kind: domain.PredicateAll, Children: []domain.Predicate{
			{Kind: domain.PredicateLevel, Level: 5},
			{Kind: domain.PredicateQuestsCompleted, QuestKeys: []string{"daily-chronicler", "verbose-explorer"}},
		}},
		RewardXP:     300,
		DurationDays: 30,
	},
}

var generatedTopics = []string{
	"childhood", "future goals", "recent accomplishment", "personal challenge",
	"gratitude", "learning experience", "favorite person",
}

type reflectionSet struct {
	questions []string
	keywords  [][]string
}

var reflectionSets = []reflectionSet{
	{
		questions: []string{"What went well today?", "What could have gone better?", "What did you learn?"},
		keywords:  [][]string{{"went well"}, {"better"}, {"learn"}},
	},
	{
		questions: []string{"What are you grateful for?", "Who made a positive impact on you recently?"},
		keywords:  [][]string{{"grateful", "gratitude"}, {"impact"}},
	},
	{
		questions: []string{"What is a goal you're working towards?", "What steps can you take to achieve it?"},
		keywords:  [][]string{{"goal"}, {"step"}},
	},
	{
		questions: []string{"What made you smile today?", "What challenged you today?"},
		keywords:  [][]string{{"smile"}, {"challeng"}},
	},
}

// generateTemplate draws a random quest from the four generated families.
func generateTemplate(rng *rand.Rand) domain.QuestTemplate {
	tmpl := domain.QuestTemplate{Key: "generated-" + uuid.NewString(), DurationDays: 7}

	switch rng.IntN(4) {
	case 0:
		words := []int{100, 200, 300, 500}[rng.IntN(4)]
		tmpl.Title = fmt.Sprintf("Word Master: %d", words)
		tmpl.Description = fmt.Sprintf("Write a journal entry with at least %d words.", words)
		tmpl.RewardXP = int64(words / 2)
		tmpl.Predicate = domain.Predicate{Kind: domain.PredicateWordCount, MinWords: words}
	case 1:
		days := 3 + rng.IntN(5)
		tmpl.Title = fmt.Sprintf("%d-Day Streak Challenge", days)
		tmpl.Description = fmt.Sprintf("Write a journal entry for %d consecutive days.", days)
		tmpl.RewardXP = int64(days * 30)
		tmpl.Predicate = domain.Predicate{Kind: domain.PredicateStreak, Count: days}
		tmpl.DurationDays = days * 2
	case 2:
		subject := generatedTopics[rng.IntN(len(generatedTopics))]
		tmpl.Title = "Reflection: " + titleCase(subject)
		tmpl.Description = fmt.Sprintf("Write a journal entry about %s.", subject)
		tmpl.RewardXP = int64(100 + rng.IntN(51))
		tmpl.Predicate = topic(subject)
	default:
		set := reflectionSets[rng.IntN(len(reflectionSets))]
		children := make([]domain.Predicate, len(set.keywords))
		for i, kw := range set.keywords {
			children[i] = topic(kw...)
		}
		tmpl.Title = "Deep Reflection Quest"
		tmpl.Description = "Answer these reflection questions: " + strings.Join(set.questions, " ")
		tmpl.RewardXP = int64(len(set.questions) * 40)
		tmpl.Predicate = domain.Predicate{Kind: domain.PredicateAll, Children: children}
	}
	return tmpl
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
