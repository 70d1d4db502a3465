package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

// memStore はテスト用のインメモリストア
// トランザクションはストア全体のロックを保持し、Rollback で変更を巻き戻す
type memStore struct {
	mu           sync.Mutex
	activities   map[string]*activity.Activity
	reservations map[string]*reservation.Reservation
	events       []*outbox.Event
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		activities:   make(map[string]*activity.Activity),
		reservations: make(map[string]*reservation.Reservation),
	}
}

type memTx struct {
	s    *memStore
	undo []func()
	done bool
}

func (s *memStore) Begin(ctx context.Context) (transaction.Tx, error) {
	s.mu.Lock()
	return &memTx{s: s}, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func asMemTx(tx transaction.Tx) *memTx {
	return tx.(*memTx)
}

func (s *memStore) addActivity(a *activity.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.activities[a.ID] = &cp
}

func (s *memStore) activity(id string) *activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.activities[id]
	return &cp
}

// confirmedSum は確定済み予約の人数合計を返す
func (s *memStore) confirmedSum(activityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, r := range s.reservations {
		if r.ActivityID == activityID && r.Status == reservation.StatusConfirmed {
			sum += r.PartySize
		}
	}
	return sum
}

func (s *memStore) eventCount(t outbox.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// --- activity.Repository ---

type memActivities struct{ s *memStore }

func (r memActivities) Create(ctx context.Context, a *activity.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq++
	a.ID = fmt.Sprintf("act-%d", r.s.seq)
	cp := *a
	r.s.activities[a.ID] = &cp
	return nil
}

func (r memActivities) GetByID(ctx context.Context, id string) (*activity.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activities[id]
	if !ok {
		return nil, activity.ErrActivityNotFound
	}
	cp := *a
	return &cp, nil
}

// --- reservation.Repository ---

type memReservations struct{ s *memStore }

func (r memReservations) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	mt := asMemTx(tx)
	if _, ok := r.s.activities[res.ActivityID]; !ok {
		return activity.ErrActivityNotFound
	}
	for _, existing := range r.s.reservations {
		if existing.ActivityID == res.ActivityID && existing.RequesterID == res.RequesterID && existing.IsPending() {
			return reservation.ErrDuplicatePending
		}
	}
	r.s.seq++
	res.ID = fmt.Sprintf("res-%d", r.s.seq)
	cp := *res
	r.s.reservations[res.ID] = &cp
	id := res.ID
	mt.undo = append(mt.undo, func() { delete(r.s.reservations, id) })
	return nil
}

func (r memReservations) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (r memReservations) HasPending(ctx context.Context, activityID, requesterID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.reservations {
		if res.ActivityID == activityID && res.RequesterID == requesterID && res.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (r memReservations) list(match func(*reservation.Reservation) bool, limit, offset int) []*reservation.Reservation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*reservation.Reservation
	for _, res := range r.s.reservations {
		if match(res) {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset > len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (r memReservations) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*reservation.Reservation, error) {
	return r.list(func(res *reservation.Reservation) bool { return res.RequesterID == requesterID }, limit, offset), nil
}

func (r memReservations) ListByActivityOwner(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	return r.list(func(res *reservation.Reservation) bool {
		a, ok := r.s.activities[res.ActivityID]
		return ok && a.OwnerID == ownerID
	}, limit, offset), nil
}

func (r memReservations) ListAll(ctx context.Context, limit, offset int) ([]*reservation.Reservation, error) {
	return r.list(func(*reservation.Reservation) bool { return true }, limit, offset), nil
}

func (r memReservations) UpdateStatus(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) error {
	mt := asMemTx(tx)
	stored, ok := r.s.reservations[res.ID]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	if stored.Status != from {
		return reservation.ErrInvalidTransition
	}
	before := *stored
	stored.Status = res.Status
	stored.CancelReason = res.CancelReason
	stored.UpdatedAt = res.UpdatedAt
	mt.undo = append(mt.undo, func() { *stored = before })
	return nil
}

func (r memReservations) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*reservation.Reservation, error) {
	return r.list(func(res *reservation.Reservation) bool {
		a, ok := r.s.activities[res.ActivityID]
		return ok && res.IsPending() && a.ScheduledAt != nil && a.ScheduledAt.Before(before)
	}, limit, 0), nil
}

// --- booking.CapacityLedger ---

type memLedger struct{ s *memStore }

func (l memLedger) TryConfirm(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	mt := asMemTx(tx)
	a, ok := l.s.activities[activityID]
	if !ok {
		return activity.ErrActivityNotFound
	}
	if !a.CanAccommodate(partySize) {
		return booking.ErrCapacityExceeded
	}
	a.ConfirmedCount += partySize
	mt.undo = append(mt.undo, func() { a.ConfirmedCount -= partySize })
	return nil
}

func (l memLedger) Release(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	mt := asMemTx(tx)
	a, ok := l.s.activities[activityID]
	if !ok {
		return activity.ErrActivityNotFound
	}
	before := a.ConfirmedCount
	a.ConfirmedCount -= partySize
	if a.ConfirmedCount < 0 {
		a.ConfirmedCount = 0
	}
	mt.undo = append(mt.undo, func() { a.ConfirmedCount = before })
	return nil
}

// --- outbox.Repository ---

type memOutbox struct{ s *memStore }

func (o memOutbox) Insert(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	mt := asMemTx(tx)
	o.s.events = append(o.s.events, e)
	n := len(o.s.events) - 1
	mt.undo = append(mt.undo, func() { o.s.events = o.s.events[:n] })
	return nil
}

func (o memOutbox) FetchPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if limit > len(o.s.events) {
		limit = len(o.s.events)
	}
	return append([]*outbox.Event(nil), o.s.events[:limit]...), nil
}

func (o memOutbox) MarkSent(ctx context.Context, id string) error {
	return nil
}
