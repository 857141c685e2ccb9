package domain

import (
	"fmt"
	"time"
)

type CharacterClass string

const (
	ClassWarrior CharacterClass = "warrior"
	ClassMage    CharacterClass = "mage"
	ClassRogue   CharacterClass = "rogue"
	ClassBard    CharacterClass = "bard"
	ClassCleric  CharacterClass = "cleric"
)

var defaultStats = map[CharacterClass]map[string]int{
	ClassWarrior: {"strength": 10, "intelligence": 5, "agility": 7, "constitution": 10, "charisma": 5},
	ClassMage:    {"strength": 4, "intelligence": 12, "agility": 6, "constitution": 5, "charisma": 8},
	ClassRogue:   {"strength": 6, "intelligence": 7, "agility": 12, "constitution": 6, "charisma": 8},
	ClassBard:    {"strength": 5, "intelligence": 8, "agility": 8, "constitution": 6, "charisma": 12},
	ClassCleric:  {"strength": 6, "intelligence": 10, "agility": 5, "constitution": 8, "charisma": 10},
}

// ParseCharacterClass validates a class name.
func ParseCharacterClass(s string) (CharacterClass, error) {
	class := CharacterClass(s)
	if _, ok := defaultStats[class]; !ok {
		return "", fmt.Errorf("unknown character class %q", s)
	}
	return class, nil
}

// DefaultStats returns a fresh copy of the starting stats for a class.
func (c CharacterClass) DefaultStats() map[string]int {
	stats := make(map[string]int, len(defaultStats[c]))
	for k, v := range defaultStats[c] {
		stats[k] = v
	}
	return stats
}

// Character is the user's progression sheet. Level, XP, Streak, LongestStreak
// and LastActiveAt are only changed by the progression engine.
type Character struct {
	ID            int64
	UserID        int64
	Name          string
	Class         CharacterClass
	Stats         map[string]int
	Level         int
	XP            int64
	Streak        int
	LongestStreak int
	LastActiveAt  *time.Time
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c Character) Clone() Character {
	out := c
	if c.Stats != nil {
		out.Stats = make(map[string]int, len(c.Stats))
		for k, v := range c.Stats {
			out.Stats[k] = v
		}
	}
	if c.LastActiveAt != nil {
		t := *c.LastActiveAt
		out.LastActiveAt = &t
	}
	return out
}
