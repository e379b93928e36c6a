package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"
)

// memLedger is the in-memory state behind memStore.
type memLedger struct {
	users        map[int]domain.User
	vehicles     map[int]domain.Vehicle
	spots        map[string]domain.Spot
	reservations map[int64]domain.Reservation
	subs         map[int64]domain.Subscription
	penalties    []domain.Penalty
	scans        []domain.ScanRecord
	activity     []domain.ActivityLog
	nextID       int64
}

func (l *memLedger) clone() *memLedger {
	c := &memLedger{
		users:        make(map[int]domain.User, len(l.users)),
		vehicles:     make(map[int]domain.Vehicle, len(l.vehicles)),
		spots:        make(map[string]domain.Spot, len(l.spots)),
		reservations: make(map[int64]domain.Reservation, len(l.reservations)),
		subs:         make(map[int64]domain.Subscription, len(l.subs)),
		penalties:    append([]domain.Penalty(nil), l.penalties...),
		scans:        append([]domain.ScanRecord(nil), l.scans...),
		activity:     append([]domain.ActivityLog(nil), l.activity...),
		nextID:       l.nextID,
	}
	for k, v := range l.users {
		c.users[k] = v
	}
	for k, v := range l.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range l.spots {
		c.spots[k] = v
	}
	for k, v := range l.reservations {
		c.reservations[k] = v
	}
	for k, v := range l.subs {
		c.subs[k] = v
	}
	return c
}

func (l *memLedger) id() int64 {
	l.nextID++
	return l.nextID
}

// memStore serialises every transaction behind one mutex, which is the
// strongest form of the row locks the PostgreSQL store takes.
type memStore struct {
	mu     sync.Mutex
	l      *memLedger
	fail   map[string]error
	before map[string]func(l *memLedger)
}

func newMemStore() *memStore {
	return &memStore{
		l: &memLedger{
			users:        map[int]domain.User{},
			vehicles:     map[int]domain.Vehicle{},
			spots:        map[string]domain.Spot{},
			reservations: map[int64]domain.Reservation{},
			subs:         map[int64]domain.Subscription{},
		},
		fail:   map[string]error{},
		before: map[string]func(l *memLedger){},
	}
}

// failOn makes the named repository operation return err until cleared.
func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// beforeOnce runs fn against the ledger the next time op is called, as if a
// concurrent writer had committed just before it.
func (s *memStore) beforeOnce(op string, fn func(l *memLedger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before[op] = fn
}

func (s *memStore) snapshot() *memLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.clone()
}

func (s *memStore) seedUser(id int, role string) {
	s.l.users[id] = domain.User{ID: id, Username: fmt.Sprintf("user%d", id), Role: role}
}

func (s *memStore) seedVehicle(id, userID int, t domain.VehicleType) {
	s.l.vehicles[id] = domain.Vehicle{ID: id, UserID: userID, Type: t}
}

func (s *memStore) seedSpot(id, section string, t domain.SpotType) {
	s.l.spots[id] = domain.Spot{ID: id, SectionID: section, Type: t, Status: domain.SpotAvailable}
}

func (s *memStore) seedSubscription(userID int, hours float64, purchased time.Time) int64 {
	id := s.l.id()
	s.l.subs[id] = domain.Subscription{ID: id, UserID: userID, HoursRemaining: hours, Status: domain.SubscriptionActive, PurchaseDate: purchased}
	return id
}

type memTx struct {
	st   *memStore
	inTx bool
}

// do runs fn against the live ledger, taking the store lock unless already inside WithinTx.
func (t memTx) do(op string, fn func(l *memLedger) error) error {
	if !t.inTx {
		t.st.mu.Lock()
		defer t.st.mu.Unlock()
	}
	if hook := t.st.before[op]; hook != nil {
		delete(t.st.before, op)
		hook(t.st.l)
	}
	if err := t.st.fail[op]; err != nil {
		return err
	}
	return fn(t.st.l)
}

func (s *memStore) direct() memTx { return memTx{st: s} }

func (s *memStore) Spots() repository.SpotRepository { return memSpots{s.direct()} }
func (s *memStore) Reservations() repository.ReservationRepository { return memReservations{s.direct()} }
func (s *memStore) Subscriptions() repository.SubscriptionRepository { return memSubs{s.direct()} }
func (s *memStore) Penalties() repository.PenaltyRepository { return memPenalties{s.direct()} }
func (s *memStore) Scans() repository.ScanTrackingRepository { return memScans{s.direct()} }
func (s *memStore) Users() repository.UserRepository { return memUsers{s.direct()} }
func (s *memStore) Vehicles() repository.VehicleRepository { return memVehicles{s.direct()} }
func (s *memStore) ActivityLog() repository.ActivityLogRepository { return memActivity{s.direct()} }

func (t memTx) Spots() repository.SpotRepository { return memSpots{t} }
func (t memTx) Reservations() repository.ReservationRepository { return memReservations{t} }
func (t memTx) Subscriptions() repository.SubscriptionRepository { return memSubs{t} }
func (t memTx) Penalties() repository.PenaltyRepository { return memPenalties{t} }
func (t memTx) Scans() repository.ScanTrackingRepository { return memScans{t} }

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.fail["WithinTx"]; e != nil {
		return e
	}
	before := s.l.clone()
	defer func() {
		if p := recover(); p != nil {
			s.l = before
			panic(p)
		}
		if err != nil {
			s.l = before
		}
	}()
	return fn(ctx, memTx{st: s, inTx: true})
}

type memSpots struct{ t memTx }

func (r memSpots) FindByID(_ context.Context, id string) (*domain.Spot, error) {
	var out *domain.Spot
	err := r.t.do("Spots.FindByID", func(l *memLedger) error {
		sp, ok := l.spots[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &sp
		return nil
	})
	return out, err
}

func (r memSpots) Find(_ context.Context, f domain.SpotFilterDTO) ([]domain.Spot, error) {
	var out []domain.Spot
	err := r.t.do("Spots.Find", func(l *memLedger) error {
		for _, sp := range l.spots {
			if f.SectionID != nil && sp.SectionID != *f.SectionID {
				continue
			}
			if f.Type != nil && string(sp.Type) != strings.ToLower(*f.Type) {
				continue
			}
			if f.Status != nil && string(sp.Status) != strings.ToLower(*f.Status) {
				continue
			}
			out = append(out, sp)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r memSpots) CapacityBySection(_ context.Context, sectionID string) (*domain.SectionCapacity, error) {
	c := &domain.SectionCapacity{SectionID: sectionID}
	err := r.t.do("Spots.CapacityBySection", func(l *memLedger) error {
		for _, sp := range l.spots {
			if sp.SectionID != sectionID {
				continue
			}
			c.Total++
			switch sp.Status {
			case domain.SpotAvailable:
				c.Available++
			case domain.SpotReserved:
				c.Reserved++
			case domain.SpotOccupied:
				c.Occupied++
			}
		}
		if c.Total == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r memSpots) ClaimWithLock(_ context.Context, spotID string, to domain.SpotStatus, from ...domain.SpotStatus) (*domain.Spot, error) {
	if !r.t.inTx {
		return nil, errors.New("ClaimWithLock outside a transaction")
	}
	var out *domain.Spot
	err := r.t.do("Spots.ClaimWithLock", func(l *memLedger) error {
		sp, ok := l.spots[spotID]
		if !ok {
			return repository.ErrNotFound
		}
		matched := false
		for _, f := range from {
			if sp.Status == f {
				matched = true
			}
		}
		if !matched {
			return fmt.Errorf("%w: spot %s is %s", repository.ErrSpotUnavailable, spotID, sp.Status)
		}
		sp.Status = to
		l.spots[spotID] = sp
		out = &sp
		return nil
	})
	return out, err
}

type memReservations struct{ t memTx }

func (r memReservations) Create(_ context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	err := r.t.do("Reservations.Create", func(l *memLedger) error {
		for _, other := range l.reservations {
			open := !other.Status.Terminal()
			switch {
			case open && other.UserID == res.UserID:
				return repository.ErrOpenReservationExists
			case open && other.SpotID == res.SpotID:
				return repository.ErrClaimLost
			case other.QRCredential == res.QRCredential:
				return repository.ErrDuplicateEntry
			}
		}
		res.ID = l.id()
		l.reservations[res.ID] = *res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r memReservations) find(op string, match func(domain.Reservation) bool) (*domain.Reservation, error) {
	var out *domain.Reservation
	err := r.t.do(op, func(l *memLedger) error {
		ids := make([]int64, 0, len(l.reservations))
		for id := range l.reservations {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		for _, id := range ids {
			res := l.reservations[id]
			if match(res) {
				res.SectionID = l.spots[res.SpotID].SectionID
				out = &res
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memReservations) FindByID(_ context.Context, id int64) (*domain.Reservation, error) {
	return r.find("Reservations.FindByID", func(res domain.Reservation) bool { return res.ID == id })
}

func (r memReservations) FindByIDForUpdate(_ context.Context, id int64) (*domain.Reservation, error) {
	return r.find("Reservations.FindByIDForUpdate", func(res domain.Reservation) bool { return res.ID == id })
}

func (r memReservations) FindByCredential(_ context.Context, credential string) (*domain.Reservation, error) {
	return r.find("Reservations.FindByCredential", func(res domain.Reservation) bool { return res.QRCredential == credential })
}

func (r memReservations) FindOpenByUser(_ context.Context, userID int) (*domain.Reservation, error) {
	return r.find("Reservations.FindOpenByUser", func(res domain.Reservation) bool {
		return res.UserID == userID && !res.Status.Terminal()
	})
}

func (r memReservations) Transition(_ context.Context, id int64, from, to domain.ReservationStatus, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%s -> %s is not allowed", from, to)
	}
	return r.t.do("Reservations.Transition", func(l *memLedger) error {
		res, ok := l.reservations[id]
		if !ok || res.Status != from {
			return repository.ErrStaleTransition
		}
		res.Status = to
		if to == domain.ReservationActive {
			res.StartTime.SetValid(at)
		} else {
			res.EndTime.SetValid(at)
		}
		l.reservations[id] = res
		return nil
	})
}

func (r memReservations) FindExpired(_ context.Context, olderThan time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.t.do("Reservations.FindExpired", func(l *memLedger) error {
		for _, res := range l.reservations {
			if res.Status == domain.ReservationReserved && res.CreatedAt.Before(olderThan) {
				res.SectionID = l.spots[res.SpotID].SectionID
				out = append(out, res)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

type memSubs struct{ t memTx }

func (r memSubs) Create(_ context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	err := r.t.do("Subscriptions.Create", func(l *memLedger) error {
		sub.ID = l.id()
		sub.PurchaseDate = time.Now().UTC()
		l.subs[sub.ID] = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r memSubs) FindByUser(_ context.Context, userID int) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := r.t.do("Subscriptions.FindByUser", func(l *memLedger) error {
		for _, s := range l.subs {
			if s.UserID == userID {
				out = append(out, s)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.Before(out[j].PurchaseDate) })
		return nil
	})
	return out, err
}

func (r memSubs) FindOldestActiveForUpdate(_ context.Context, userID int) (*domain.Subscription, error) {
	var out *domain.Subscription
	err := r.t.do("Subscriptions.FindOldestActiveForUpdate", func(l *memLedger) error {
		for _, s := range l.subs {
			if s.UserID != userID || s.Status != domain.SubscriptionActive || s.HoursRemaining <= repository.BalanceEpsilon {
				continue
			}
			if out == nil || s.PurchaseDate.Before(out.PurchaseDate) {
				s := s
				out = &s
			}
		}
		if out == nil {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r memSubs) Deduct(_ context.Context, id int64, hours float64) (float64, error) {
	var remaining float64
	err := r.t.do("Subscriptions.Deduct", func(l *memLedger) error {
		s, ok := l.subs[id]
		if !ok {
			return repository.ErrNotFound
		}
		used := hours
		if used > s.HoursRemaining {
			used = s.HoursRemaining
		}
		s.HoursRemaining -= hours
		if s.HoursRemaining <= repository.BalanceEpsilon {
			s.HoursRemaining = 0
			s.Status = domain.SubscriptionExhausted
		}
		s.HoursUsed += used
		l.subs[id] = s
		remaining = s.HoursRemaining
		return nil
	})
	return remaining, err
}

type memPenalties struct{ t memTx }

func (r memPenalties) Create(_ context.Context, p *domain.Penalty) (*domain.Penalty, error) {
	err := r.t.do("Penalties.Create", func(l *memLedger) error {
		p.ID = l.id()
		l.penalties = append(l.penalties, *p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r memPenalties) FindByUser(_ context.Context, userID int) ([]domain.Penalty, error) {
	var out []domain.Penalty
	err := r.t.do("Penalties.FindByUser", func(l *memLedger) error {
		for _, p := range l.penalties {
			if p.UserID == userID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

type memScans struct{ t memTx }

func (r memScans) Create(_ context.Context, scan *domain.ScanRecord) error {
	return r.t.do("Scans.Create", func(l *memLedger) error {
		scan.ID = l.id()
		l.scans = append(l.scans, *scan)
		return nil
	})
}

type memUsers struct{ t memTx }

func (r memUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	err := r.t.do("Users.Create", func(l *memLedger) error {
		u.ID = int(l.id())
		l.users[u.ID] = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	var out *domain.User
	err := r.t.do("Users.FindByUsername", func(l *memLedger) error {
		for _, u := range l.users {
			if u.Username == username {
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memUsers) FindByID(_ context.Context, id int) (*domain.User, error) {
	var out *domain.User
	err := r.t.do("Users.FindByID", func(l *memLedger) error {
		u, ok := l.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

type memVehicles struct{ t memTx }

func (r memVehicles) FindByID(_ context.Context, id int) (*domain.Vehicle, error) {
	var out *domain.Vehicle
	err := r.t.do("Vehicles.FindByID", func(l *memLedger) error {
		v, ok := l.vehicles[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

type memActivity struct{ t memTx }

func (r memActivity) Create(_ context.Context, e *domain.ActivityLog) error {
	return r.t.do("ActivityLog.Create", func(l *memLedger) error {
		e.ID = l.id()
		l.activity = append(l.activity, *e)
		return nil
	})
}

// recordingNotifier keeps every broadcast for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.SpotStatusNotification
}

func (n *recordingNotifier) NotifySpotStatus(s domain.SpotStatusNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
}

func (n *recordingNotifier) statuses() []domain.SpotStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.SpotStatus, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Status
	}
	return out
}

var (
	_ repository.Store = (*memStore)(nil)
	_ repository.Tx    = memTx{}
)
