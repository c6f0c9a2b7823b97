package question

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/model"
)

func TestSubmitCompletesAtThreshold(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 2)
	ctx := context.Background()

	fq, err := f.assigner.ResolveCurrent(ctx, fam.ID)
	require.NoError(t, err)

	first, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "Walking the dog")
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.Equal(t, model.StatusInProgress, first.Entry.Status)
	assert.Equal(t, int32(0), f.gen.calls.Load())

	second, err := f.intake.Submit(ctx, members[1].ID, fq.ID, "Sunday pancakes")
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, model.StatusCompleted, second.Entry.Status)
	assert.NotNil(t, second.Entry.CompletedAt)
	assert.True(t, second.Entry.HasInsight())
	assert.Equal(t, int32(1), f.gen.calls.Load())

	f.gen.mu.Lock()
	req := f.gen.last
	f.gen.mu.Unlock()
	assert.Equal(t, "Question 1", req.QuestionText)
	require.Len(t, req.Answers, 2)
	assert.Equal(t, "Walking the dog", req.Answers[0].Content)
	assert.Len(t, req.Members, 2)

	assert.Equal(t,
		[]string{"question_assigned", "answer_submitted", "answer_submitted", "question_completed"},
		f.notifier.types(fam.ID))
}

func TestSubmitResubmissionUpdates(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 3)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	a1, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "first")
	require.NoError(t, err)
	a2, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "second")
	require.NoError(t, err)

	assert.Equal(t, a1.Answer.ID, a2.Answer.ID)
	assert.Equal(t, "second", a2.Answer.Content)
	assert.False(t, a2.Completed)

	n, err := f.answers.CountMembers(ctx, fq.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitRejectsCompletedEntry(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 2)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	_, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "a")
	require.NoError(t, err)
	_, err = f.intake.Submit(ctx, members[1].ID, fq.ID, "b")
	require.NoError(t, err)

	// The roster grows after completion.
	newcomer, err := f.families.AddMember(ctx, fam.ID, "Grandma", model.RoleMother, 1950)
	require.NoError(t, err)

	_, err = f.intake.Submit(ctx, newcomer.ID, fq.ID, "late answer")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeAlreadyCompleted, apperr.CodeOf(err))

	_, err = f.intake.Submit(ctx, members[0].ID, fq.ID, "edit after completion")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	got, err := f.entries.GetByID(ctx, fq.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RequiredMemberCount)
	answers, err := f.answers.ListByEntry(ctx, fq.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "a", answers[0].Content)
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestSubmitRequiredCountFollowsShrinkingRoster(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 3)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)
	require.Equal(t, 3, fq.RequiredMemberCount)

	require.NoError(t, f.families.RemoveMember(ctx, members[2].ID))

	_, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "a")
	require.NoError(t, err)
	sub, err := f.intake.Submit(ctx, members[1].ID, fq.ID, "b")
	require.NoError(t, err)

	assert.True(t, sub.Completed)
	assert.Equal(t, 2, sub.Entry.RequiredMemberCount)
}

func TestSubmitRequiredCountNotLoweredByGrowth(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 3)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	extra, err := f.families.AddMember(ctx, fam.ID, "Uncle", model.RoleFather, 1975)
	require.NoError(t, err)

	for _, m := range members[:2] {
		sub, err := f.intake.Submit(ctx, m.ID, fq.ID, "x")
		require.NoError(t, err)
		assert.False(t, sub.Completed)
		assert.Equal(t, 3, sub.Entry.RequiredMemberCount)
	}

	sub, err := f.intake.Submit(ctx, extra.ID, fq.ID, "y")
	require.NoError(t, err)
	assert.True(t, sub.Completed, "three of four members reach the stored requirement")
}

func TestSubmitAccessRules(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 2)
	other, otherMembers := f.family(t, 2)
	ctx := context.Background()

	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)
	_, err := f.assigner.ResolveCurrent(ctx, other.ID)
	require.NoError(t, err)

	_, err = f.intake.Submit(ctx, otherMembers[0].ID, fq.ID, "sneaky")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	loner, err := f.families.CreateMember(ctx, "Loner", model.RoleChild, 2012)
	require.NoError(t, err)
	_, err = f.intake.Submit(ctx, loner.ID, fq.ID, "hi")
	assert.Equal(t, apperr.CodeMemberNotInFamily, apperr.CodeOf(err))

	_, err = f.intake.Submit(ctx, 12345, fq.ID, "hi")
	assert.Equal(t, apperr.CodeMemberNotFound, apperr.CodeOf(err))

	_, err = f.intake.Submit(ctx, members[0].ID, 12345, "hi")
	assert.Equal(t, apperr.CodeFamilyQuestionNotFound, apperr.CodeOf(err))
}

func TestSubmitValidatesContent(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 2)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	_, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "   \n\t")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.intake.Submit(ctx, members[0].ID, fq.ID, strings.Repeat("가", MaxAnswerLength+1))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	sub, err := f.intake.Submit(ctx, members[0].ID, fq.ID, strings.Repeat("가", MaxAnswerLength))
	require.NoError(t, err)
	assert.Len(t, []rune(sub.Answer.Content), MaxAnswerLength)

	sub, err = f.intake.Submit(ctx, members[0].ID, fq.ID, "  cafe\u0301  ")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", sub.Answer.Content)
}

func TestSubmitInsightTimeoutStillCompletes(t *testing.T) {
	f := newFixtureWith(t, 3, func(o *Options) { o.InsightTimeout = 50 * time.Millisecond })
	f.gen.block = true
	fam, members := f.family(t, 2)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	_, err := f.intake.Submit(ctx, members[0].ID, fq.ID, "a")
	require.NoError(t, err)
	sub, err := f.intake.Submit(ctx, members[1].ID, fq.ID, "b")
	require.NoError(t, err)

	assert.True(t, sub.Completed)
	assert.Equal(t, model.StatusCompleted, sub.Entry.Status)
	assert.False(t, sub.Entry.HasInsight())

	view, err := f.reader.Today(ctx, members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, fq.ID, view.Entry.ID)
	assert.Nil(t, view.Insight)
}

func TestSubmitInsightErrorStillCompletes(t *testing.T) {
	f := newFixture(t, 3)
	f.gen.err = errors.New("model overloaded")
	fam, members := f.family(t, 2)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	f.intake.Submit(ctx, members[0].ID, fq.ID, "a")
	sub, err := f.intake.Submit(ctx, members[1].ID, fq.ID, "b")
	require.NoError(t, err)
	assert.True(t, sub.Completed)
	assert.False(t, sub.Entry.HasInsight())
}

func TestSubmitWithoutGenerator(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 2)
	ctx := context.Background()
	intake := NewIntake(f.db, nil, Options{Clock: f.clock, Location: kst})
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	intake.Submit(ctx, members[0].ID, fq.ID, "a")
	sub, err := intake.Submit(ctx, members[1].ID, fq.ID, "b")
	require.NoError(t, err)
	assert.True(t, sub.Completed)
	assert.False(t, sub.Entry.HasInsight())
}

func TestSubmitConcurrentCompletesOnce(t *testing.T) {
	f := newFixture(t, 3)
	const n = 8
	fam, members := f.family(t, n)
	ctx := context.Background()
	fq, err := f.assigner.ResolveCurrent(ctx, fam.ID)
	require.NoError(t, err)
	require.Equal(t, n, fq.RequiredMemberCount)

	results := make([]*Submission, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.intake.Submit(ctx, members[i].ID, fq.ID, "together")
		}(i)
	}
	close(start)
	wg.Wait()

	completions := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Completed {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
	assert.Equal(t, int32(1), f.gen.calls.Load())

	got, err := f.entries.GetByID(ctx, fq.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted())
	assert.True(t, got.HasInsight())
	assert.Equal(t, 0, f.intake.locks.size())
}

// Two Intake values share nothing but the database, so only the completion
// compare-and-swap inside the write transaction keeps the close single.
func TestSubmitConcurrentAcrossIntakesCompletesOnce(t *testing.T) {
	f := newFixture(t, 3)
	fam, members := f.family(t, 6)
	ctx := context.Background()
	fq, err := f.assigner.ResolveCurrent(ctx, fam.ID)
	require.NoError(t, err)
	require.Equal(t, 6, fq.RequiredMemberCount)

	opts := Options{Clock: f.clock, Location: kst, InsightTimeout: 2 * time.Second}
	intakes := []*Intake{NewIntake(f.db, f.gen, opts), NewIntake(f.db, f.gen, opts)}
	for _, m := range members[:4] {
		_, err := intakes[0].Submit(ctx, m.ID, fq.ID, "early")
		require.NoError(t, err)
	}

	results := make([]*Submission, 2)
	errs := make([]error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = intakes[i].Submit(ctx, members[4+i].ID, fq.ID, "late")
		}(i)
	}
	close(start)
	wg.Wait()

	completions := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Completed {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
	assert.Equal(t, int32(1), f.gen.calls.Load())

	got, err := f.entries.GetByID(ctx, fq.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted())
	n, err := f.answers.CountMembers(ctx, fq.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestSubmitConcurrentAfterThresholdConflicts(t *testing.T) {
	f := newFixtureWith(t, 3, func(o *Options) { o.MinMembers = 2 })
	fam, members := f.family(t, 2)
	ctx := context.Background()
	fq, _ := f.assigner.ResolveCurrent(ctx, fam.ID)

	// Both members hammer the entry; exactly one submission closes it and any
	// submission ordered after the close is rejected.
	const perMember = 4
	var (
		mu          sync.Mutex
		completions int
		conflicts   int
	)
	var wg sync.WaitGroup
	for _, m := range members {
		for i := 0; i < perMember; i++ {
			wg.Add(1)
			go func(memberID int64) {
				defer wg.Done()
				sub, err := f.intake.Submit(ctx, memberID, fq.ID, "again")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
					conflicts++
				case sub.Completed:
					completions++
				}
			}(m.ID)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, completions)
	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Positive(t, conflicts)
}
