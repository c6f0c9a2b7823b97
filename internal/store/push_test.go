package store

import (
	"context"
	"testing"

	"github.com/dukerupert/familyq/internal/model"
)

func setupPushTest(t *testing.T) (*PushStore, *FamilyStore, int64, int64) {
	t.Helper()
	db := setupTestDB(t)
	fs := NewFamilyStore(db)
	ctx := context.Background()

	f, err := fs.Create(ctx, "Park")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	m, err := fs.AddMember(ctx, f.ID, "Ji-woo", model.RoleMother, 1985)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	return NewPushStore(db), fs, f.ID, m.ID
}

func TestPushSubscribe(t *testing.T) {
	ps, _, _, memberID := setupPushTest(t)

	sub, err := ps.Subscribe(context.Background(), memberID, "https://push.example.com/a", "p1", "a1", "Phone")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.MemberID != memberID {
		t.Errorf("member_id = %d, want %d", sub.MemberID, memberID)
	}
	if sub.DeviceName != "Phone" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Phone")
	}
}

func TestPushSubscribeUpsertsEndpoint(t *testing.T) {
	ps, _, _, memberID := setupPushTest(t)
	ctx := context.Background()

	first, _ := ps.Subscribe(ctx, memberID, "https://push.example.com/a", "p1", "a1", "Phone")
	second, err := ps.Subscribe(ctx, memberID, "https://push.example.com/a", "p2", "a2", "Tablet")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.P256dhKey != "p2" || second.AuthKey != "a2" {
		t.Errorf("keys = %q/%q, want p2/a2", second.P256dhKey, second.AuthKey)
	}

	subs, _ := ps.ListByMember(ctx, memberID)
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}
}

func TestPushListByFamilyFollowsRoster(t *testing.T) {
	ps, fs, familyID, memberID := setupPushTest(t)
	ctx := context.Background()

	other, _ := fs.Create(ctx, "Lee")
	outsider, _ := fs.AddMember(ctx, other.ID, "Min", model.RoleFather, 1980)

	ps.Subscribe(ctx, memberID, "https://push.example.com/a", "p", "a", "")
	ps.Subscribe(ctx, outsider.ID, "https://push.example.com/b", "p", "a", "")

	subs, err := ps.ListByFamily(ctx, familyID)
	if err != nil {
		t.Fatalf("list by family: %v", err)
	}
	if len(subs) != 1 || subs[0].MemberID != memberID {
		t.Fatalf("subs = %+v, want only member %d", subs, memberID)
	}

	if err := fs.RemoveMember(ctx, memberID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	subs, _ = ps.ListByFamily(ctx, familyID)
	if len(subs) != 0 {
		t.Errorf("len = %d after leaving family, want 0", len(subs))
	}
}

func TestPushDeleteIsScopedToOwner(t *testing.T) {
	ps, fs, familyID, memberID := setupPushTest(t)
	ctx := context.Background()

	sibling, _ := fs.AddMember(ctx, familyID, "Seo-yeon", model.RoleChild, 2012)
	sub, _ := ps.Subscribe(ctx, memberID, "https://push.example.com/a", "p", "a", "")

	removed, err := ps.Delete(ctx, sub.ID, sibling.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed {
		t.Error("another member must not delete the subscription")
	}

	removed, err = ps.Delete(ctx, sub.ID, memberID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Error("expected owner delete to remove the row")
	}
}

func TestPushDeleteByEndpoint(t *testing.T) {
	ps, _, _, memberID := setupPushTest(t)
	ctx := context.Background()

	ps.Subscribe(ctx, memberID, "https://push.example.com/a", "p", "a", "")
	if err := ps.DeleteByEndpoint(ctx, "https://push.example.com/a"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ := ps.ListByMember(ctx, memberID)
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}
