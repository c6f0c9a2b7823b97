// Package question runs the per-family daily question lifecycle: choosing the
// current entry, collecting answers, detecting completion and attaching the
// generated insight.
package question

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

const (
	// MaxAnswerLength is the longest answer accepted, in runes.
	MaxAnswerLength = 2000

	defaultInsightTimeout = 45 * time.Second
)

// Notifier receives lifecycle events for a family. *websocket.Hub satisfies it.
type Notifier interface {
	BroadcastFamily(familyID int64, msg ws.Message)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastFamily(int64, ws.Message) {}

// Notifiers fans each event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) BroadcastFamily(familyID int64, msg ws.Message) {
	for _, n := range ns {
		n.BroadcastFamily(familyID, msg)
	}
}

// Options configures the question services. Zero values fall back to the
// system clock, UTC, the package minimum roster size and a discarding logger.
type Options struct {
	Clock          clock.Clock
	Location       *time.Location
	MinMembers     int
	Notifier       Notifier
	Logger         *slog.Logger
	InsightTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.System()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MinMembers <= 0 {
		o.MinMembers = model.MinMembersToStart
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.InsightTimeout <= 0 {
		o.InsightTimeout = defaultInsightTimeout
	}
	return o
}

// memberFamily loads a member and the family they belong to.
func memberFamily(ctx context.Context, families *store.FamilyStore, memberID int64) (*model.Member, int64, error) {
	m, err := families.GetMember(ctx, memberID)
	if err != nil {
		return nil, 0, err
	}
	if m == nil {
		return nil, 0, apperr.NotFound(apperr.CodeMemberNotFound, "member not found")
	}
	if m.FamilyID == nil {
		return nil, 0, apperr.Forbidden(apperr.CodeMemberNotInFamily, "member does not belong to a family")
	}
	return m, *m.FamilyID, nil
}
