package watch

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"wash-sync/internal/services/reservations"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type fakeCarwashSource struct {
	ids []bson.ObjectID
	err error
}

func (f *fakeCarwashSource) OwnedIDs(context.Context, bson.ObjectID) ([]bson.ObjectID, error) {
	return f.ids, f.err
}

func sessionCfg() SessionConfig {
	return SessionConfig{DedupTTL: 30 * time.Second, DedupCapacity: 64}
}

// drain collects everything currently buffered on a subscriber channel.
func drain(sub *Subscriber) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub.Ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func connect(hub *Hub, userID bson.ObjectID) (*Subscriber, func()) {
	connULID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return hub.Subscribe(connULID, userID)
}

func TestSession_ClientGetsViewAndNotification(t *testing.T) {
	feed := &fakeFeed{}
	hub := NewHub(64)
	userID := bson.NewObjectID()

	sub, cancel := connect(hub, userID)
	defer cancel()

	sess := NewSession(feed, hub, &fakeCarwashSource{}, userID, RoleClient, sessionCfg(), silentLogger)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	// view watcher + global notification watcher
	require.Equal(t, 2, feed.subCount())

	// both watchers baseline on the same pending reservation
	r := pendingRes()
	baseline := []reservations.Reservation{r}
	baselineChanges := []Change{{Kind: ChangeAdded, Reservation: r}}
	feed.subs[0].onEvent(baseline, baselineChanges)
	feed.subs[1].onEvent(baseline, baselineChanges)

	// the reservation is confirmed; both subscriptions see it
	r.Status = reservations.StatusConfirmed
	r.UpdatedAt = r.UpdatedAt.Add(time.Second)
	change := []Change{{Kind: ChangeModified, Reservation: r}}
	snapshot := []reservations.Reservation{r}
	feed.subs[0].onEvent(snapshot, change)
	feed.subs[1].onEvent(snapshot, change)

	events := drain(sub)

	var views, notifications int
	for _, ev := range events {
		switch ev.Type {
		case EventTypeView:
			views++
		case EventTypeNotification:
			notifications++
			assert.Equal(t, "Réservation", ev.Title)
			assert.Equal(t, "Confirmée.", ev.Message)
		}
	}
	assert.GreaterOrEqual(t, views, 1, "view frames flow from the view watcher")
	assert.Equal(t, 1, notifications, "the terminal status change is announced exactly once")
}

func TestSession_OwnerWithNoCarwashesBroadcastsEmptyView(t *testing.T) {
	feed := &fakeFeed{}
	hub := NewHub(64)
	userID := bson.NewObjectID()

	sub, cancel := connect(hub, userID)
	defer cancel()

	sess := NewSession(feed, hub, &fakeCarwashSource{}, userID, RoleOwner, sessionCfg(), silentLogger)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	assert.Equal(t, 0, feed.subCount(), "nothing to watch without carwashes")

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeView, events[0].Type)
	assert.Empty(t, events[0].Reservations)
}

func TestSession_OwnerAboveLimitIsDegraded(t *testing.T) {
	docs := []reservations.Reservation{pendingRes()}
	feed := &fakeFeed{queryDocs: docs}
	hub := NewHub(64)
	userID := bson.NewObjectID()

	sub, cancel := connect(hub, userID)
	defer cancel()

	source := &fakeCarwashSource{ids: makeIDs(MaxFilterIDs + 5)}
	sess := NewSession(feed, hub, source, userID, RoleOwner, sessionCfg(), silentLogger)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	// no live subscription at all: view is batched, global watcher skipped
	assert.Equal(t, 0, feed.subCount())

	events := drain(sub)
	require.NotEmpty(t, events)
	assert.Equal(t, EventTypeView, events[0].Type)
	assert.True(t, events[0].Degraded, "device must learn the view is not live")

	// manual pull refreshes the degraded view
	require.NoError(t, sess.Reload(context.Background()))
	reloaded := drain(sub)
	require.Len(t, reloaded, 1)
	assert.True(t, reloaded[0].Degraded)
}

func TestSession_OwnerWithinLimitIsLive(t *testing.T) {
	feed := &fakeFeed{}
	hub := NewHub(64)
	userID := bson.NewObjectID()

	source := &fakeCarwashSource{ids: makeIDs(3)}
	sess := NewSession(feed, hub, source, userID, RoleOwner, sessionCfg(), silentLogger)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	require.Equal(t, 2, feed.subCount())
	assert.Len(t, feed.subs[0].filter.CarwashIDs, 3)
}

func TestSession_CloseStopsAllWatchers(t *testing.T) {
	feed := &fakeFeed{}
	hub := NewHub(64)
	userID := bson.NewObjectID()

	sess := NewSession(feed, hub, &fakeCarwashSource{}, userID, RoleClient, sessionCfg(), silentLogger)
	require.NoError(t, sess.Start(context.Background()))
	require.Equal(t, 2, feed.subCount())

	sess.Close()
	sess.Close() // idempotent

	for i, sub := range feed.subs {
		assert.Equal(t, 1, sub.stops, "subscription %d must be released exactly once", i)
	}
}

func TestSession_CarwashSourceFailurePropagates(t *testing.T) {
	boom := errors.New("carwash lookup failed")
	feed := &fakeFeed{}
	hub := NewHub(64)

	sess := NewSession(feed, hub, &fakeCarwashSource{err: boom}, bson.NewObjectID(), RoleOwner, sessionCfg(), silentLogger)
	err := sess.Start(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestManager_RefCounting(t *testing.T) {
	feed := &fakeFeed{}
	hub := NewHub(64)
	m := NewManager(feed, hub, &fakeCarwashSource{}, sessionCfg(), silentLogger)
	userID := bson.NewObjectID()

	first, err := m.Acquire(context.Background(), userID, RoleClient)
	require.NoError(t, err)
	second, err := m.Acquire(context.Background(), userID, RoleClient)
	require.NoError(t, err)

	assert.Same(t, first, second, "one session per user")
	assert.Equal(t, 1, m.SessionCount())
	assert.Equal(t, 2, feed.subCount(), "the second device must not spawn new watchers")

	m.Release(userID)
	assert.Equal(t, 1, m.SessionCount(), "session survives while a device remains")

	m.Release(userID)
	assert.Equal(t, 0, m.SessionCount())
	for _, sub := range feed.subs {
		assert.Equal(t, 1, sub.stops)
	}
}

func TestManager_RejectsRoleMismatch(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, NewHub(64), &fakeCarwashSource{ids: []bson.ObjectID{bson.NewObjectID()}}, sessionCfg(), silentLogger)
	userID := bson.NewObjectID()

	first, err := m.Acquire(context.Background(), userID, RoleClient)
	require.NoError(t, err)

	// a second device with an owner claim must not share the client session
	_, err = m.Acquire(context.Background(), userID, RoleOwner)
	require.ErrorIs(t, err, ErrSessionRoleMismatch)
	assert.Equal(t, 1, m.SessionCount(), "the live session is untouched")

	// same role still shares
	again, err := m.Acquire(context.Background(), userID, RoleClient)
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestManager_ReleaseUnknownUserIsHarmless(t *testing.T) {
	m := NewManager(&fakeFeed{}, NewHub(64), &fakeCarwashSource{}, sessionCfg(), silentLogger)
	m.Release(bson.NewObjectID())
	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_FailedStartLeavesNoSession(t *testing.T) {
	feed := &fakeFeed{subErr: errors.New("no replica set")}
	m := NewManager(feed, NewHub(64), &fakeCarwashSource{}, sessionCfg(), silentLogger)

	_, err := m.Acquire(context.Background(), bson.NewObjectID(), RoleClient)
	require.Error(t, err)
	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_ShutdownClosesEverything(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, NewHub(64), &fakeCarwashSource{}, sessionCfg(), silentLogger)

	_, err := m.Acquire(context.Background(), bson.NewObjectID(), RoleClient)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), bson.NewObjectID(), RoleClient)
	require.NoError(t, err)

	m.Shutdown()
	assert.Equal(t, 0, m.SessionCount())
	for _, sub := range feed.subs {
		assert.Equal(t, 1, sub.stops)
	}
}
