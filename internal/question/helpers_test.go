package question

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/database"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

var kst = time.FixedZone("KST", 9*60*60)

type fakeGenerator struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  insight.Request
	err   error
	block bool
}

func (g *fakeGenerator) Generate(ctx context.Context, req insight.Request) (*insight.Summary, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return insight.Heuristic{}.Generate(ctx, req)
}

type sentMessage struct {
	familyID int64
	msg      ws.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) BroadcastFamily(familyID int64, msg ws.Message) {
	n.mu.Lock()
	n.sent = append(n.sent, sentMessage{familyID, msg})
	n.mu.Unlock()
}

func (n *recordingNotifier) types(familyID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.familyID == familyID {
			out = append(out, s.msg.Type)
		}
	}
	return out
}

type fixture struct {
	db       *sql.DB
	families *store.FamilyStore
	catalog  *store.CatalogStore
	entries  *store.FamilyQuestionStore
	answers  *store.AnswerStore
	clock    *clock.Mock
	gen      *fakeGenerator
	notifier *recordingNotifier
	assigner *Assigner
	intake   *Intake
	reader   *Reader
}

func newFixture(t *testing.T, catalogSize int) *fixture {
	return newFixtureWith(t, catalogSize, func(*Options) {})
}

func newFixtureWith(t *testing.T, catalogSize int, tweak func(*Options)) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		families: store.NewFamilyStore(db),
		catalog:  store.NewCatalogStore(db),
		entries:  store.NewFamilyQuestionStore(db),
		answers:  store.NewAnswerStore(db),
		clock:    clock.NewMock(time.Date(2026, 10, 19, 10, 0, 0, 0, kst)),
		gen:      &fakeGenerator{},
		notifier: &recordingNotifier{},
	}

	texts := make([]string, catalogSize)
	for i := range texts {
		texts[i] = fmt.Sprintf("Question %d", i+1)
	}
	if catalogSize > 0 {
		_, err = f.catalog.Import(context.Background(), texts)
		require.NoError(t, err)
	}

	opts := Options{
		Clock:          f.clock,
		Location:       kst,
		MinMembers:     model.MinMembersToStart,
		Notifier:       f.notifier,
		InsightTimeout: 2 * time.Second,
	}
	tweak(&opts)
	f.assigner = NewAssigner(db, opts)
	f.intake = NewIntake(db, f.gen, opts)
	f.reader = NewReader(db, f.assigner, opts)
	return f
}

// family creates a started family with n members: two parents, then children.
func (f *fixture) family(t *testing.T, n int) (*model.Family, []model.Member) {
	t.Helper()
	ctx := context.Background()
	fam, err := f.families.Create(ctx, "Family")
	require.NoError(t, err)

	roles := []model.Role{model.RoleFather, model.RoleMother}
	var members []model.Member
	for i := 0; i < n; i++ {
		role, year := model.RoleChild, 2010+i
		if i < len(roles) {
			role, year = roles[i], 1978+i
		}
		m, err := f.families.AddMember(ctx, fam.ID, fmt.Sprintf("Member %d", i+1), role, year)
		require.NoError(t, err)
		members = append(members, *m)
	}
	require.NoError(t, f.families.SetQuestionsStarted(ctx, fam.ID, true))
	fam.QuestionsStarted = true
	return fam, members
}

func (f *fixture) complete(t *testing.T, entryID int64) {
	t.Helper()
	ok, err := f.entries.MarkCompleted(context.Background(), entryID, f.clock.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) nextDay() {
	f.clock.Advance(24 * time.Hour)
}
