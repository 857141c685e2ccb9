package progression

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamify-journal/internal/domain"
)

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testRules() Rules {
	r := DefaultRules()
	r.BaseXP = 10
	r.StreakBonusPerDay = 5
	r.StreakBonusCap = 20
	r.LengthDivisor = 10
	r.LengthBonusCap = 100
	r.Levels = NewLevelTable(100, 20)
	return r
}

func newEngine(t *testing.T, rules Rules) *Engine {
	t.Helper()
	e, err := New(rules)
	require.NoError(t, err)
	return e
}

func newCharacter() domain.Character {
	return domain.Character{ID: 1, UserID: 7, Name: "Ayla", Class: domain.ClassBard, Level: 1}
}

func entryAt(id int64, at time.Time, content string) domain.JournalEntry {
	return domain.JournalEntry{ID: id, UserID: 7, Title: "day", Content: content, CreatedAt: at}
}

func quest(id int64, key string, p domain.Predicate, reward int64, accepted time.Time) domain.Quest {
	return domain.Quest{
		ID: id, UserID: 7, TemplateKey: key, Title: key,
		Predicate: p, RewardXP: reward, Status: domain.QuestStatusActive, AcceptedAt: accepted,
	}
}

func countEvents(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestRecordEntry_FirstEntryStartsStreak(t *testing.T) {
	e := newEngine(t, testRules())

	res, err := e.RecordEntry(State{Character: newCharacter()}, entryAt(1, day0, "short"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Character.Streak)
	assert.Equal(t, 1, res.Character.LongestStreak)
	assert.Equal(t, int64(10), res.Character.XP)
	assert.Equal(t, int64(10), res.Entry.XPEarned)
	require.NotNil(t, res.Character.LastActiveAt)
	assert.True(t, res.Character.LastActiveAt.Equal(day0))
	assert.Equal(t, 1, countEvents(res.Events, EventStreakStarted))
}

func TestRecordEntry_StreakTransitions(t *testing.T) {
	e := newEngine(t, testRules())
	state := State{Character: newCharacter()}

	steps := []struct {
		name   string
		at     time.Time
		streak int
		kind   EventKind
	}{
		{"first", day0, 1, EventStreakStarted},
		{"next day", day0.Add(24 * time.Hour), 2, EventStreakExtended},
		{"same day later", day0.Add(30 * time.Hour), 2, ""},
		{"third day", day0.Add(47 * time.Hour), 3, EventStreakExtended},
		{"after a gap", day0.Add(5 * 24 * time.Hour), 1, EventStreakBroken},
	}

	for i, step := range steps {
		res, err := e.RecordEntry(state, entryAt(int64(i+1), step.at, "x"))
		require.NoError(t, err, step.name)
		assert.Equal(t, step.streak, res.Character.Streak, step.name)
		if step.kind != "" {
			assert.Equal(t, 1, countEvents(res.Events, step.kind), step.name)
		} else {
			assert.Zero(t, countEvents(res.Events, EventStreakExtended)+countEvents(res.Events, EventStreakBroken), step.name)
		}
		state.Character = res.Character
	}
	assert.Equal(t, 3, state.Character.LongestStreak)
}

func TestRecordEntry_StreakUsesConfiguredTimezone(t *testing.T) {
	rules := testRules()
	loc := time.FixedZone("UTC-8", -8*3600)
	rules.Location = loc
	e := newEngine(t, rules)

	// 23:00 and 01:00 UTC the next morning are the same local day in UTC-8.
	first := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	second := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

	res, err := e.RecordEntry(State{Character: newCharacter()}, entryAt(1, first, "a"))
	require.NoError(t, err)
	res, err = e.RecordEntry(State{Character: res.Character}, entryAt(2, second, "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Character.Streak)
}

func TestRecordEntry_XPIncludesStreakAndLengthBonus(t *testing.T) {
	e := newEngine(t, testRules())
	ch := newCharacter()
	last := day0
	ch.LastActiveAt = &last
	ch.Streak = 3

	content := strings.Repeat("a", 55)
	res, err := e.RecordEntry(State{Character: ch}, entryAt(1, day0.Add(24*time.Hour), content))
	require.NoError(t, err)

	// streak 4: base 10 + min(3*5, 20) + 55/10
	assert.Equal(t, int64(10+15+5), res.Entry.XPEarned)
}

func TestStreakBonusIsMonotonic(t *testing.T) {
	r := testRules()
	prev := r.StreakBonus(0)
	for s := 1; s < 50; s++ {
		b := r.StreakBonus(s)
		assert.GreaterOrEqual(t, b, prev, "streak %d", s)
		prev = b
	}
	assert.Equal(t, r.StreakBonusCap, r.StreakBonus(1000))
}

func TestRecordEntry_RejectsOutOfOrderEntry(t *testing.T) {
	e := newEngine(t, testRules())
	ch := newCharacter()
	last := day0
	ch.LastActiveAt = &last
	ch.XP = 40
	ch.Streak = 2
	q := quest(1, "scribe", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 1}, 50, day0.Add(-time.Hour))
	state := State{Character: ch, Quests: []domain.Quest{q}}

	_, err := e.RecordEntry(state, entryAt(1, day0.Add(-time.Minute), "late"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	assert.Equal(t, int64(40), state.Character.XP)
	assert.Equal(t, 2, state.Character.Streak)
	assert.True(t, state.Character.LastActiveAt.Equal(day0))
	assert.Equal(t, domain.QuestStatusActive, state.Quests[0].Status)
	assert.Nil(t, state.Quests[0].CompletedAt)
}

func TestRecordEntry_RejectsOwnershipMismatch(t *testing.T) {
	e := newEngine(t, testRules())

	entry := entryAt(1, day0, "x")
	entry.UserID = 99
	_, err := e.RecordEntry(State{Character: newCharacter()}, entry)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	foreign := quest(1, "q", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 5, day0)
	foreign.UserID = 99
	_, err = e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{foreign}}, entryAt(1, day0, "x"))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestRecordEntry_MultiLevelJump(t *testing.T) {
	e := newEngine(t, testRules())
	// thresholds: L2=100, L3=300, L4=600
	q := quest(1, "big", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 340, day0.Add(-time.Hour))

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{q}}, entryAt(1, day0, "x"))
	require.NoError(t, err)

	assert.Equal(t, int64(350), res.Character.XP)
	assert.Equal(t, 3, res.Character.Level)
	var levels []int
	for _, ev := range res.Events {
		if ev.Kind == EventLevelUp {
			levels = append(levels, ev.Level)
		}
	}
	assert.Equal(t, []int{2, 3}, levels)
	assert.Equal(t, int64(350), res.Entry.XPEarned)
}

func TestRecordEntry_EntryCountQuestCompletesOnThirdEntry(t *testing.T) {
	e := newEngine(t, testRules())
	q := quest(1, "three-in-seven", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 3, WindowDays: 7}, 100, day0.Add(-time.Hour))
	state := State{Character: newCharacter(), Quests: []domain.Quest{q}}

	for i := 0; i < 3; i++ {
		at := day0.Add(time.Duration(i*2) * 24 * time.Hour)
		res, err := e.RecordEntry(state, entryAt(int64(i+1), at, "x"))
		require.NoError(t, err)

		if i < 2 {
			assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status, "entry %d", i+1)
			assert.Empty(t, res.Changed)
		} else {
			assert.Equal(t, domain.QuestStatusCompleted, res.Quests[0].Status)
			require.Len(t, res.Changed, 1)
			assert.Equal(t, 1, countEvents(res.Events, EventQuestCompleted))
			require.NotNil(t, res.Quests[0].CompletedAt)
			assert.True(t, res.Quests[0].CompletedAt.Equal(at))
		}
		state.Character = res.Character
		state.Quests = res.Quests
		state.History = append(state.History, res.Entry)
	}
}

func TestRecordEntry_EntryCountWindowExcludesOldEntries(t *testing.T) {
	e := newEngine(t, testRules())
	q := quest(1, "burst", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 2, WindowDays: 3}, 10, day0.Add(-time.Hour))
	ch := newCharacter()
	last := day0
	ch.LastActiveAt = &last
	ch.Streak = 1
	state := State{
		Character: ch,
		Quests:    []domain.Quest{q},
		History:   []domain.JournalEntry{entryAt(1, day0, "old")},
	}

	res, err := e.RecordEntry(state, entryAt(2, day0.Add(3*24*time.Hour), "new"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)

	res, err = e.RecordEntry(state, entryAt(2, day0.Add(2*24*time.Hour), "new"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[0].Status)
}

func TestRecordEntry_EntriesBeforeAcceptanceDoNotCount(t *testing.T) {
	e := newEngine(t, testRules())
	ch := newCharacter()
	last := day0
	ch.LastActiveAt = &last
	ch.Streak = 1
	q := quest(1, "pair", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 2}, 10, day0.Add(time.Hour))

	res, err := e.RecordEntry(State{
		Character: ch,
		Quests:    []domain.Quest{q},
		History:   []domain.JournalEntry{entryAt(1, day0, "before")},
	}, entryAt(2, day0.Add(2*time.Hour), "after"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)
}

func TestRecordEntry_WordCountAndTopicPredicates(t *testing.T) {
	e := newEngine(t, testRules())
	accepted := day0.Add(-time.Hour)
	quests := []domain.Quest{
		quest(1, "verbose", domain.Predicate{Kind: domain.PredicateWordCount, MinWords: 5}, 10, accepted),
		quest(2, "memory", domain.Predicate{Kind: domain.PredicateTopic, Keywords: []string{"Childhood"}}, 10, accepted),
	}

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: quests}, entryAt(1, day0, "my childhood home"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[1].Status)
}

func TestRecordEntry_QuestChainResolvesInOneUpdate(t *testing.T) {
	e := newEngine(t, testRules())
	accepted := day0.Add(-time.Hour)
	// The dependent quest has the lower id so it is evaluated first and only
	// becomes satisfied on a later pass.
	quests := []domain.Quest{
		quest(1, "capstone", domain.Predicate{Kind: domain.PredicateQuestsCompleted, QuestKeys: []string{"first-step"}}, 50, accepted),
		quest(2, "first-step", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 20, accepted),
	}

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: quests}, entryAt(1, day0, "x"))
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[0].Status)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[1].Status)
	assert.Equal(t, int64(10+20+50), res.Character.XP)
	assert.Len(t, res.Changed, 2)
}

func TestRecordEntry_LevelQuestTriggeredByQuestReward(t *testing.T) {
	e := newEngine(t, testRules())
	accepted := day0.Add(-time.Hour)
	quests := []domain.Quest{
		quest(1, "reach-two", domain.Predicate{Kind: domain.PredicateLevel, Level: 2}, 5, accepted),
		quest(2, "boost", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 100, accepted),
	}

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: quests}, entryAt(1, day0, "x"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[0].Status)
	assert.Equal(t, 2, res.Character.Level)
}

func TestRecordEntry_PassCapLeavesQuestActive(t *testing.T) {
	rules := testRules()
	rules.MaxPredicatePasses = 1
	e := newEngine(t, rules)
	accepted := day0.Add(-time.Hour)
	quests := []domain.Quest{
		quest(1, "capstone", domain.Predicate{Kind: domain.PredicateQuestsCompleted, QuestKeys: []string{"first-step"}}, 50, accepted),
		quest(2, "first-step", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 20, accepted),
	}

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: quests}, entryAt(1, day0, "x"))
	require.NoError(t, err)
	require.Error(t, res.Warning)
	assert.True(t, errors.Is(res.Warning, ErrPredicateLimitExceeded))
	assert.Equal(t, []int64{1}, res.Unsettled)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[1].Status)
}

func TestRecordEntry_CompositePredicates(t *testing.T) {
	e := newEngine(t, testRules())
	accepted := day0.Add(-time.Hour)
	allOf := domain.Predicate{Kind: domain.PredicateAll, Children: []domain.Predicate{
		{Kind: domain.PredicateTopic, Keywords: []string{"grateful"}},
		{Kind: domain.PredicateTopic, Keywords: []string{"learn"}},
	}}
	anyOf := domain.Predicate{Kind: domain.PredicateAny, Children: []domain.Predicate{
		{Kind: domain.PredicateStreak, Count: 10},
		{Kind: domain.PredicateTopic, Keywords: []string{"grateful"}},
	}}
	quests := []domain.Quest{quest(1, "reflect", allOf, 10, accepted), quest(2, "either", anyOf, 10, accepted)}

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: quests}, entryAt(1, day0, "I am grateful"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[1].Status)
}

func TestRecordEntry_ExpiresOverdueQuestsBeforeEvaluation(t *testing.T) {
	e := newEngine(t, testRules())
	deadline := day0.Add(-time.Minute)
	q := quest(1, "late", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 100, day0.Add(-48*time.Hour))
	q.Deadline = &deadline

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{q}}, entryAt(1, day0, "x"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusExpired, res.Quests[0].Status)
	assert.Equal(t, 1, countEvents(res.Events, EventQuestExpired))
	assert.Zero(t, countEvents(res.Events, EventQuestCompleted))
	assert.Equal(t, int64(10), res.Character.XP)
}

func TestRecordEntry_TerminalQuestsNeverChange(t *testing.T) {
	e := newEngine(t, testRules())
	done := day0.Add(-time.Hour)
	completed := quest(1, "done", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 100, day0.Add(-48*time.Hour))
	completed.Status = domain.QuestStatusCompleted
	completed.CompletedAt = &done
	expired := quest(2, "gone", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 100, day0.Add(-48*time.Hour))
	expired.Status = domain.QuestStatusExpired

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{completed, expired}}, entryAt(1, day0, "x"))
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, domain.QuestStatusCompleted, res.Quests[0].Status)
	assert.Equal(t, domain.QuestStatusExpired, res.Quests[1].Status)
	assert.Equal(t, int64(10), res.Character.XP)
}

func TestRecordEntry_IsPure(t *testing.T) {
	e := newEngine(t, testRules())
	q := quest(1, "q", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 1}, 100, day0.Add(-time.Hour))
	state := State{Character: newCharacter(), Quests: []domain.Quest{q}}
	entry := entryAt(1, day0, "hello world")

	first, err := e.RecordEntry(state, entry)
	require.NoError(t, err)
	second, err := e.RecordEntry(state, entry)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.QuestStatusActive, state.Quests[0].Status)
	assert.Nil(t, state.Character.LastActiveAt)
}

func TestLevelAlwaysMatchesTable(t *testing.T) {
	rules := testRules()
	e := newEngine(t, rules)
	accepted := day0.Add(-time.Hour)
	quests := []domain.Quest{
		quest(1, "a", domain.Predicate{Kind: domain.PredicateStreak, Count: 3}, 250, accepted),
		quest(2, "b", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 5, WindowDays: 7}, 400, accepted),
		quest(3, "c", domain.Predicate{Kind: domain.PredicateQuestsCompleted, QuestKeys: []string{"a", "b"}}, 1000, accepted),
	}
	state := State{Character: newCharacter(), Quests: quests}

	for i := 0; i < 30; i++ {
		at := day0.Add(time.Duration(i*13) * time.Hour)
		res, err := e.RecordEntry(state, entryAt(int64(i+1), at, strings.Repeat("w ", i*7)))
		require.NoError(t, err)
		assert.Equal(t, rules.Levels.LevelFor(res.Character.XP), res.Character.Level)
		assert.GreaterOrEqual(t, res.Character.XP, state.Character.XP)
		state.Character = res.Character
		state.Quests = res.Quests
		state.History = append(state.History, res.Entry)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	e := newEngine(t, testRules())
	accepted := day0.Add(-time.Hour)
	quests := []domain.Quest{
		quest(1, "streak-3", domain.Predicate{Kind: domain.PredicateStreak, Count: 3}, 120, accepted),
		quest(2, "three-in-seven", domain.Predicate{Kind: domain.PredicateEntryCount, Count: 3, WindowDays: 7}, 90, accepted),
	}
	var entries []domain.JournalEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, entryAt(int64(10-i), day0.Add(time.Duration(9-i)*26*time.Hour), strings.Repeat("z", i*20)))
	}

	first, err := e.Replay(newCharacter(), quests, entries)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Replay(newCharacter(), quests, entries)
		require.NoError(t, err)
		assert.Equal(t, first.Character, again.Character)
		assert.Equal(t, first.Quests, again.Quests)
		assert.Equal(t, first.Events, again.Events)
	}
	assert.Equal(t, domain.QuestStatusCompleted, first.Quests[1].Status)
}

func TestExpireQuests(t *testing.T) {
	e := newEngine(t, testRules())
	past := day0.Add(-time.Hour)
	future := day0.Add(time.Hour)
	overdue := quest(1, "a", domain.Predicate{Kind: domain.PredicateStreak, Count: 5}, 10, day0.Add(-72*time.Hour))
	overdue.Deadline = &past
	pending := quest(2, "b", domain.Predicate{Kind: domain.PredicateStreak, Count: 5}, 10, day0.Add(-72*time.Hour))
	pending.Deadline = &future
	open := quest(3, "c", domain.Predicate{Kind: domain.PredicateStreak, Count: 5}, 10, day0.Add(-72*time.Hour))

	changed, events := e.ExpireQuests([]domain.Quest{open, pending, overdue}, day0)
	require.Len(t, changed, 1)
	assert.Equal(t, int64(1), changed[0].ID)
	assert.Equal(t, domain.QuestStatusExpired, changed[0].Status)
	require.NotNil(t, changed[0].ExpiredAt)
	assert.Len(t, events, 1)
	assert.Equal(t, domain.QuestStatusActive, overdue.Status)
}

func TestNewRejectsBadRules(t *testing.T) {
	rules := testRules()
	rules.Levels = LevelTable{0, 100, 100}
	_, err := New(rules)
	assert.Error(t, err)

	rules = testRules()
	rules.MaxPredicatePasses = 0
	_, err = New(rules)
	assert.Error(t, err)
}

func TestRecordEntry_QuestAcceptedLaterIsNotEvaluated(t *testing.T) {
	e := newEngine(t, testRules())
	q := quest(1, "later", domain.Predicate{Kind: domain.PredicateStreak, Count: 1}, 50, day0.Add(time.Hour))

	res, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{q}}, entryAt(1, day0, "early"))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, res.Quests[0].Status)
	assert.Empty(t, res.Changed)
	assert.Equal(t, int64(10), res.Character.XP)
}

func TestRecordEntry_BackdatedEntryCannotBeatPassedDeadline(t *testing.T) {
	e := newEngine(t, testRules())
	deadline := day0.Add(7 * 24 * time.Hour)
	q := quest(1, "memory", domain.Predicate{Kind: domain.PredicateTopic, Keywords: []string{"childhood"}}, 120, day0)
	q.Deadline = &deadline
	entry := entryAt(1, day0.Add(24*time.Hour), "a childhood summer")

	onTime, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{q}, AsOf: day0.Add(48 * time.Hour)}, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusCompleted, onTime.Quests[0].Status)

	late, err := e.RecordEntry(State{Character: newCharacter(), Quests: []domain.Quest{q}, AsOf: day0.Add(8 * 24 * time.Hour)}, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusExpired, late.Quests[0].Status)
	require.NotNil(t, late.Quests[0].ExpiredAt)
	assert.True(t, deadline.Equal(*late.Quests[0].ExpiredAt))
	assert.Zero(t, countEvents(late.Events, EventQuestCompleted))
	assert.Equal(t, onTime.Character.XP-120, late.Character.XP)

	entry.RecordedAt = day0.Add(8 * 24 * time.Hour)
	replayed, err := e.Replay(newCharacter(), []domain.Quest{q}, []domain.JournalEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, late.Character, replayed.Character)
	assert.Equal(t, late.Quests, replayed.Quests)
}
