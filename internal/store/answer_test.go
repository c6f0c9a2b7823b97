package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/familyq/internal/model"
)

func TestAnswerUpsertUpdatesInPlace(t *testing.T) {
	fx := setupFamilyQuestionTest(t)
	ctx := context.Background()
	fq := fx.create(t, 1, 1)
	dad, err := fx.families.AddMember(ctx, fx.family.ID, "Dad", model.RoleFather, 1979)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	first, err := fx.answers.Upsert(ctx, fq.ID, dad.ID, "first draft", t0)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := fx.answers.Upsert(ctx, fq.ID, dad.ID, "final answer", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.Content != "final answer" {
		t.Errorf("content = %q, want %q", second.Content, "final answer")
	}
	if !second.CreatedAt.Equal(t0) {
		t.Errorf("created_at = %v, want it kept at %v", second.CreatedAt, t0)
	}
	if !second.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("updated_at = %v, want %v", second.UpdatedAt, t0.Add(time.Minute))
	}

	n, err := fx.answers.CountMembers(ctx, fq.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestAnswerListByEntryJoinsMembers(t *testing.T) {
	fx := setupFamilyQuestionTest(t)
	ctx := context.Background()
	fq := fx.create(t, 1, 1)
	mom, _ := fx.families.AddMember(ctx, fx.family.ID, "Mom", model.RoleMother, 1983)
	kid, _ := fx.families.AddMember(ctx, fx.family.ID, "Kid", model.RoleChild, 2014)

	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	if _, err := fx.answers.Upsert(ctx, fq.ID, kid.ID, "pizza", t0); err != nil {
		t.Fatalf("upsert kid: %v", err)
	}
	if _, err := fx.answers.Upsert(ctx, fq.ID, mom.ID, "soup", t0.Add(time.Second)); err != nil {
		t.Fatalf("upsert mom: %v", err)
	}

	answers, err := fx.answers.ListByEntry(ctx, fq.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("len = %d, want 2", len(answers))
	}
	if answers[0].MemberName != "Kid" || answers[0].Role != model.RoleChild || answers[0].BirthYear != 2014 {
		t.Errorf("first answer = %+v, want Kid the child born 2014", answers[0])
	}
	if answers[1].MemberName != "Mom" {
		t.Errorf("second answer by %q, want Mom", answers[1].MemberName)
	}

	n, _ := fx.answers.CountMembers(ctx, fq.ID)
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestAnswerGetMissing(t *testing.T) {
	fx := setupFamilyQuestionTest(t)
	fq := fx.create(t, 1, 1)

	a, err := fx.answers.Get(context.Background(), fq.ID, 12345)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil answer, got %+v", a)
	}
}
