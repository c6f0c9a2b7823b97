package question

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

const (
	createAttempts = 3
	createBackoff  = 20 * time.Millisecond
)

// Assigner decides which lifecycle entry is current for a family and creates
// successors. Every creation path runs in one write transaction that re-reads
// the family's entries, so concurrent callers cannot both create the same
// sequence number.
type Assigner struct {
	db       *sql.DB
	families *store.FamilyStore
	catalog  *store.CatalogStore
	entries  *store.FamilyQuestionStore
	locks    *keyedMutex
	opts     Options
}

func NewAssigner(db *sql.DB, opts Options) *Assigner {
	return &Assigner{
		db:       db,
		families: store.NewFamilyStore(db),
		catalog:  store.NewCatalogStore(db),
		entries:  store.NewFamilyQuestionStore(db),
		locks:    newKeyedMutex(),
		opts:     opts.withDefaults(),
	}
}

// Today returns the current calendar date in the policy timezone.
func (a *Assigner) Today() time.Time {
	return clock.Today(a.opts.Clock, a.opts.Location)
}

// txStores binds the stores an assignment needs to one transaction.
type txStores struct {
	families *store.FamilyStore
	catalog  *store.CatalogStore
	entries  *store.FamilyQuestionStore
}

func (a *Assigner) bind(tx *sql.Tx) txStores {
	return txStores{
		families: a.families.WithTx(tx),
		catalog:  a.catalog.WithTx(tx),
		entries:  a.entries.WithTx(tx),
	}
}

// eligibility checks that the family exists, has started its cycle and has
// enough members.
func (a *Assigner) eligibility(ctx context.Context, s txStores, familyID int64) (rosterSize int, err error) {
	fam, err := s.families.GetByID(ctx, familyID)
	if err != nil {
		return 0, err
	}
	if fam == nil {
		return 0, apperr.NotFound(apperr.CodeFamilyNotFound, "family not found")
	}
	size, err := s.families.Size(ctx, familyID)
	if err != nil {
		return 0, err
	}
	if !fam.QuestionsStarted {
		return size, apperr.NotReady(apperr.CodeFamilyNotReady, "family has not started questions")
	}
	if size < a.opts.MinMembers {
		return size, apperr.NotReady(apperr.CodeFamilyNotReady,
			fmt.Sprintf("family needs at least %d members, has %d", a.opts.MinMembers, size))
	}
	return size, nil
}

func catalogSize(ctx context.Context, s txStores) (int, error) {
	n, err := s.catalog.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apperr.NotFound(apperr.CodeCatalogEmpty, "no questions in the catalog")
	}
	return n, nil
}

// create inserts the entry for (round, seq) with today's date.
func (a *Assigner) create(ctx context.Context, s txStores, familyID int64, round, seq, rosterSize int) (*model.FamilyQuestion, error) {
	q, err := s.catalog.GetByOrderIndex(ctx, seq)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apperr.NotFound(apperr.CodeQuestionNotFound, fmt.Sprintf("no catalog question at position %d", seq))
	}
	return s.entries.Create(ctx, store.NewFamilyQuestion{
		FamilyID:            familyID,
		QuestionID:          q.ID,
		Round:               round,
		SequenceNumber:      seq,
		AssignedDate:        a.Today(),
		RequiredMemberCount: model.InitialRequiredMembers(rosterSize, a.opts.MinMembers),
	})
}

// successor returns the (round, sequence) that follows latest, wrapping to the
// first catalog question of the next round once the catalog is exhausted.
func successor(latest *model.FamilyQuestion, catalogSize int) (round, seq int) {
	if latest == nil {
		return 1, 1
	}
	if latest.SequenceNumber >= catalogSize {
		return latest.Round + 1, 1
	}
	return latest.Round, latest.SequenceNumber + 1
}

// canAdvance reports whether the daily rule allows creating the entry after
// latest: it is completed, its date has passed and the catalog has more.
func canAdvance(latest *model.FamilyQuestion, catalogSize int, today time.Time) bool {
	return latest.IsCompleted() &&
		latest.SequenceNumber < catalogSize &&
		today.After(latest.AssignedDate)
}

// ResolveCurrent returns the family's current entry, creating the first or
// next one when the daily rule allows it. A family that has not started or is
// too small fails with NotReady; an empty catalog fails with NotFound.
func (a *Assigner) ResolveCurrent(ctx context.Context, familyID int64) (*model.FamilyQuestion, error) {
	fq, created, err := a.withRetry(ctx, familyID, func(ctx context.Context, s txStores) (*model.FamilyQuestion, bool, error) {
		return a.resolve(ctx, s, familyID, true)
	})
	if err != nil {
		return nil, err
	}
	if created {
		a.notifyAssigned(fq)
	}
	return fq, nil
}

// Advance is the scheduler's path. It only moves a family past a completed
// entry and never creates the first one. The returned entry is nil when the
// family has no entries yet.
func (a *Assigner) Advance(ctx context.Context, familyID int64) (*model.FamilyQuestion, bool, error) {
	fq, created, err := a.withRetry(ctx, familyID, func(ctx context.Context, s txStores) (*model.FamilyQuestion, bool, error) {
		return a.resolve(ctx, s, familyID, false)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		a.notifyAssigned(fq)
	}
	return fq, created, nil
}

func (a *Assigner) resolve(ctx context.Context, s txStores, familyID int64, seed bool) (*model.FamilyQuestion, bool, error) {
	total, err := catalogSize(ctx, s)
	if err != nil {
		return nil, false, err
	}

	fam, err := s.families.GetByID(ctx, familyID)
	if err != nil {
		return nil, false, err
	}
	if fam == nil {
		return nil, false, apperr.NotFound(apperr.CodeFamilyNotFound, "family not found")
	}

	open, err := s.entries.GetInProgress(ctx, familyID)
	if err != nil {
		return nil, false, err
	}
	if open != nil {
		return open, false, nil
	}

	latest, err := s.entries.GetLatest(ctx, familyID)
	if err != nil {
		return nil, false, err
	}
	if latest == nil && !seed {
		return nil, false, nil
	}
	if latest != nil && !canAdvance(latest, total, a.Today()) {
		return latest, false, nil
	}

	size, err := a.eligibility(ctx, s, familyID)
	if err != nil {
		if latest != nil && apperr.Is(err, apperr.KindNotReady) {
			return latest, false, nil
		}
		return nil, false, err
	}

	round, seq := 1, 1
	if latest != nil {
		round, seq = latest.Round, latest.SequenceNumber+1
	}
	fq, err := a.create(ctx, s, familyID, round, seq, size)
	if err != nil {
		return nil, false, err
	}
	return fq, true, nil
}

// withRetry runs fn in a write transaction under the family lock. A creation
// that loses to another writer is retried; the retry then sees the winner's
// entry and returns it.
func (a *Assigner) withRetry(ctx context.Context, familyID int64, fn func(context.Context, txStores) (*model.FamilyQuestion, bool, error)) (*model.FamilyQuestion, bool, error) {
	unlock := a.locks.Lock(familyID)
	defer unlock()

	var (
		result  *model.FamilyQuestion
		created bool
	)
	backoff := retry.WithMaxRetries(createAttempts-1, retry.NewConstant(createBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := store.InTx(ctx, a.db, func(tx *sql.Tx) error {
			fq, c, err := fn(ctx, a.bind(tx))
			if err != nil {
				return err
			}
			result, created = fq, c
			return nil
		})
		if apperr.CodeOf(err) == apperr.CodeDuplicateSequence {
			a.opts.Logger.Debug("lost entry creation race, retrying", "family_id", familyID)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// Refresh discards the family's open entry with its answers and assigns the
// next question in its place.
func (a *Assigner) Refresh(ctx context.Context, familyID int64) (*model.FamilyQuestion, error) {
	return a.force(ctx, familyID, func(ctx context.Context, s txStores, open *model.FamilyQuestion) error {
		if _, err := s.entries.DeleteInProgress(ctx, open.ID); err != nil {
			return err
		}
		return nil
	})
}

// Skip closes the family's open entry without an insight and assigns the next
// question.
func (a *Assigner) Skip(ctx context.Context, familyID int64) (*model.FamilyQuestion, error) {
	return a.force(ctx, familyID, func(ctx context.Context, s txStores, open *model.FamilyQuestion) error {
		ok, err := s.entries.MarkCompleted(ctx, open.ID, a.opts.Clock.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict(apperr.CodeAlreadyCompleted, "question was completed concurrently")
		}
		return nil
	})
}

// force advances regardless of date, calling retire on the open entry first.
func (a *Assigner) force(ctx context.Context, familyID int64, retire func(context.Context, txStores, *model.FamilyQuestion) error) (*model.FamilyQuestion, error) {
	unlock := a.locks.Lock(familyID)
	defer unlock()

	var fq *model.FamilyQuestion
	err := store.InTx(ctx, a.db, func(tx *sql.Tx) error {
		s := a.bind(tx)
		total, err := catalogSize(ctx, s)
		if err != nil {
			return err
		}
		size, err := a.eligibility(ctx, s, familyID)
		if err != nil {
			return err
		}

		open, err := s.entries.GetInProgress(ctx, familyID)
		if err != nil {
			return err
		}
		if open != nil {
			if err := retire(ctx, s, open); err != nil {
				return err
			}
		}

		prev := open
		if prev == nil {
			if prev, err = s.entries.GetLatest(ctx, familyID); err != nil {
				return err
			}
		}
		round, seq := successor(prev, total)
		fq, err = a.create(ctx, s, familyID, round, seq, size)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.notifyAssigned(fq)
	return fq, nil
}

func (a *Assigner) notifyAssigned(fq *model.FamilyQuestion) {
	a.opts.Logger.Info("question assigned",
		"family_id", fq.FamilyID,
		"entry_id", fq.ID,
		"round", fq.Round,
		"sequence", fq.SequenceNumber,
	)
	a.opts.Notifier.BroadcastFamily(fq.FamilyID, ws.NewMessage("question", "assigned", fq.ID, map[string]any{
		"round":           fq.Round,
		"sequence_number": fq.SequenceNumber,
		"assigned_date":   clock.FormatDate(fq.AssignedDate),
	}))
}
