package progression

type EventKind string

const (
	EventXPAwarded      EventKind = "xp_awarded"
	EventLevelUp        EventKind = "level_up"
	EventStreakStarted  EventKind = "streak_started"
	EventStreakExtended EventKind = "streak_extended"
	EventStreakBroken   EventKind = "streak_broken"
	EventQuestCompleted EventKind = "quest_completed"
	EventQuestExpired   EventKind = "quest_expired"
)

const (
	SourceEntry = "entry"
	SourceQuest = "quest"
)

// Event describes one observable change produced by the engine.
type Event struct {
	Kind           EventKind
	XP             int64
	Source         string
	Level          int
	Streak         int
	PreviousStreak int
	QuestID        int64
	QuestTitle     string
}
