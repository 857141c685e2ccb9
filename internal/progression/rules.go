package progression

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// LevelTable holds cumulative XP thresholds. Entry i is the XP needed to
// reach level i+1, so the first entry is always zero.
type LevelTable []int64

// NewLevelTable builds a triangular table: threshold(N) = step*(N-1)*N/2.
func NewLevelTable(step int64, maxLevel int) LevelTable {
	if maxLevel < 1 {
		maxLevel = 1
	}
	table := make(LevelTable, maxLevel)
	for i := range table {
		n := int64(i + 1)
		table[i] = step * (n - 1) * n / 2
	}
	return table
}

// Validate checks the table starts at zero and strictly increases.
func (t LevelTable) Validate() error {
	if len(t) == 0 {
		return errors.New("level table is empty")
	}
	if t[0] != 0 {
		return errors.New("level 1 threshold must be zero")
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("level %d threshold %d does not exceed level %d threshold %d", i+1, t[i], i, t[i-1])
		}
	}
	return nil
}

// LevelFor returns the highest level whose threshold is at most xp.
func (t LevelTable) LevelFor(xp int64) int {
	level := sort.Search(len(t), func(i int) bool { return t[i] > xp })
	if level < 1 {
		return 1
	}
	return level
}

// Threshold returns the cumulative XP for level, false past the max level.
func (t LevelTable) Threshold(level int) (int64, bool) {
	if level < 1 || level > len(t) {
		return 0, false
	}
	return t[level-1], true
}

// MaxLevel is the last level in the table.
func (t LevelTable) MaxLevel() int {
	return len(t)
}

// Rules are the tunable constants of the engine.
type Rules struct {
	BaseXP             int64
	StreakBonusPerDay  int64
	StreakBonusCap     int64
	LengthDivisor      int64
	LengthBonusCap     int64
	Levels             LevelTable
	MaxPredicatePasses int
	Location           *time.Location
}

// DefaultRules mirrors the values shipped in config defaults.
func DefaultRules() Rules {
	return Rules{
		BaseXP:             10,
		StreakBonusPerDay:  5,
		StreakBonusCap:     50,
		LengthDivisor:      10,
		LengthBonusCap:     100,
		Levels:             NewLevelTable(100, 100),
		MaxPredicatePasses: 8,
		Location:           time.UTC,
	}
}

func (r Rules) Validate() error {
	if r.BaseXP < 0 || r.StreakBonusPerDay < 0 || r.StreakBonusCap < 0 || r.LengthBonusCap < 0 {
		return errors.New("xp constants must not be negative")
	}
	if r.LengthDivisor <= 0 {
		return errors.New("length divisor must be positive")
	}
	if r.MaxPredicatePasses < 1 {
		return errors.New("max predicate passes must be at least 1")
	}
	if err := r.Levels.Validate(); err != nil {
		return fmt.Errorf("level table: %w", err)
	}
	return nil
}

// StreakBonus grows linearly with the streak and saturates at the cap.
func (r Rules) StreakBonus(streak int) int64 {
	if streak <= 1 {
		return 0
	}
	bonus := int64(streak-1) * r.StreakBonusPerDay
	if bonus > r.StreakBonusCap {
		return r.StreakBonusCap
	}
	return bonus
}

// LengthBonus awards one point per LengthDivisor characters, capped.
func (r Rules) LengthBonus(content string) int64 {
	bonus := int64(utf8.RuneCountInString(content)) / r.LengthDivisor
	if bonus > r.LengthBonusCap {
		return r.LengthBonusCap
	}
	return bonus
}

// EntryXP is the XP for one entry before any quest rewards.
func (r Rules) EntryXP(streak int, content string) int64 {
	return r.BaseXP + r.StreakBonus(streak) + r.LengthBonus(content)
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// dayNumber maps t to a count of calendar days in loc.
func dayNumber(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
