package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/repository"
)

func TestSeedTemplatesIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.quests.SeedTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(builtinTemplates), created)

	created, err = env.quests.SeedTemplates(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestBuiltinTemplatesAreValid(t *testing.T) {
	keys := map[string]bool{}
	for _, tmpl := range builtinTemplates {
		assert.NoError(t, tmpl.Predicate.Validate(), tmpl.Key)
		assert.False(t, keys[tmpl.Key], "duplicate key %s", tmpl.Key)
		keys[tmpl.Key] = true
	}
}

func TestAcceptQuest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.hero(t, "ada")
	_, err := env.quests.SeedTemplates(ctx)
	require.NoError(t, err)

	available, err := env.quests.Available(ctx, uid, 0, 0)
	require.NoError(t, err)
	require.Len(t, available, len(builtinTemplates))

	tmpl := available[0]
	quest, err := env.quests.Accept(ctx, uid, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestStatusActive, quest.Status)
	assert.True(t, quest.AcceptedAt.Equal(base))
	require.NotNil(t, quest.Deadline)
	assert.True(t, quest.Deadline.Equal(base.AddDate(0, 0, tmpl.DurationDays)))

	_, err = env.quests.Accept(ctx, uid, tmpl.ID)
	assert.ErrorIs(t, err, ErrQuestAlreadyAccepted)

	_, err = env.quests.Accept(ctx, uid, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	available, err = env.quests.Available(ctx, uid, 0, 0)
	require.NoError(t, err)
	assert.Len(t, available, len(builtinTemplates)-1)
	for _, a := range available {
		assert.NotEqual(t, tmpl.ID, a.ID)
	}
}

func TestGenerateTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.hero(t, "ada")

	for i := 0; i < 10; i++ {
		tmpl, err := env.quests.Generate(ctx)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(tmpl.Key, "generated-"))
		assert.NotZero(t, tmpl.ID)
		assert.Positive(t, tmpl.RewardXP)
		assert.Positive(t, tmpl.DurationDays)
		assert.NoError(t, tmpl.Predicate.Validate())
	}

	available, err := env.quests.Available(ctx, uid, 0, MaxListLimit)
	require.NoError(t, err)
	assert.Len(t, available, 10)

	// served from the cache after Generate
	quest, err := env.quests.Accept(ctx, uid, available[3].ID)
	require.NoError(t, err)
	assert.Equal(t, available[3].Key, quest.TemplateKey)
}

func TestListMineFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.hero(t, "ada")
	_, err := env.quests.SeedTemplates(ctx)
	require.NoError(t, err)

	for _, key := range []string{"verbose-explorer", "daily-chronicler"} {
		tmpl, err := env.repos.Quests.GetTemplateByKey(ctx, key)
		require.NoError(t, err)
		_, err = env.quests.Accept(ctx, uid, tmpl.ID)
		require.NoError(t, err)
	}

	all, err := env.quests.ListMine(ctx, uid, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	expired := domain.QuestStatusExpired
	none, err := env.quests.ListMine(ctx, uid, &expired)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestExpireOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.hero(t, "ada")
	bob := env.hero(t, "bob")
	_, err := env.quests.SeedTemplates(ctx)
	require.NoError(t, err)

	short, err := env.repos.Quests.GetTemplateByKey(ctx, "verbose-explorer")
	require.NoError(t, err)
	long, err := env.repos.Quests.GetTemplateByKey(ctx, "daily-chronicler")
	require.NoError(t, err)

	for _, uid := range []int64{ada, bob} {
		_, err = env.quests.Accept(ctx, uid, short.ID)
		require.NoError(t, err)
		_, err = env.quests.Accept(ctx, uid, long.ID)
		require.NoError(t, err)
	}

	n, err := env.quests.ExpireOverdue(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.quests.ExpireOverdue(ctx, base.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expired := domain.QuestStatusExpired
	mine, err := env.quests.ListMine(ctx, ada, &expired)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, short.ID, mine[0].TemplateID)
	require.NotNil(t, mine[0].ExpiredAt)
	assert.True(t, mine[0].ExpiredAt.Equal(*mine[0].Deadline))

	n, err = env.quests.ExpireOverdue(ctx, base.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
}
