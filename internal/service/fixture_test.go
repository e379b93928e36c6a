package service

import (
	"sync"
	"time"

	"campus_parking/internal/config"
	"campus_parking/internal/domain"
)

// fakeClock is advanced explicitly by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    *memStore
	clock    *fakeClock
	notifier *recordingNotifier
	qr       *QRIssuer
	booking  *BookingService
	sessions *SessionService
}

var (
	alice     = domain.Actor{UserID: 1, Username: "alice", Role: domain.RoleUser}
	bob       = domain.Actor{UserID: 2, Username: "bob", Role: domain.RoleUser}
	attendant = domain.Actor{UserID: 50, Username: "gatekeeper", Role: domain.RoleAttendant}
)

func newFixture(policy config.ShortfallPolicy) *fixture {
	store := newMemStore()
	store.seedUser(1, domain.RoleUser)
	store.seedUser(2, domain.RoleUser)
	store.seedUser(50, domain.RoleAttendant)
	store.seedVehicle(10, 1, domain.VehicleCar)
	store.seedVehicle(11, 1, domain.VehicleEBike)
	store.seedVehicle(20, 2, domain.VehicleCar)
	store.seedSpot("S101", "A", domain.SpotTypeCar)
	store.seedSpot("S102", "A", domain.SpotTypeCar)
	store.seedSpot("B201", "B", domain.SpotTypeBike)

	clock := &fakeClock{t: time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	qr := NewQRIssuer(64)
	activity := NewActivityRecorder(store.ActivityLog())

	booking := NewBookingService(store, qr, notifier, activity)
	booking.now = clock.Now
	sessions := NewSessionService(store, qr, NewBillingEngine(policy), notifier, activity)
	sessions.now = clock.Now

	return &fixture{store: store, clock: clock, notifier: notifier, qr: qr, booking: booking, sessions: sessions}
}

func bookDTO(vehicleID int, spotID, areaID string) domain.BookSpotDTO {
	return domain.BookSpotDTO{VehicleID: vehicleID, SpotID: spotID, AreaID: areaID}
}
