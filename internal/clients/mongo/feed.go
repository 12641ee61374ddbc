package mongo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"wash-sync/internal/logger"
	"wash-sync/internal/services/reservations"
	"wash-sync/internal/services/watch"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrChangeStreamsUnavailable is returned from Subscribe on a stand-alone
// deployment. One-shot queries still work; callers fall back to them.
var ErrChangeStreamsUnavailable = errors.New("change streams require a replica set deployment")

// Feed implements watch.Store on the reservations collection: one-shot
// queries plus change-stream subscriptions dressed up in the snapshot/changes
// contract the watchers expect.
type Feed struct {
	collection *mongo.Collection
}

// NewFeed creates the feed adapter.
func NewFeed(db *mongo.Database) *Feed {
	return &Feed{collection: db.Collection("reservations")}
}

// Query runs one one-shot read.
func (f *Feed) Query(ctx context.Context, flt watch.Filter) ([]reservations.Reservation, error) {
	filter, err := reservationFilter(flt)
	if err != nil {
		return nil, err
	}

	ctx, cancel := WithRepoTimeout(ctx, OpTimeout)
	defer cancel()

	cursor, err := f.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func(ctxToClose context.Context) {
		if cerr := cursor.Close(ctxToClose); cerr != nil {
			logger.L().Error("failed to close cursor", "error", cerr)
		}
	}(ctx)

	list := []reservations.Reservation{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Subscribe opens a change stream scoped to flt. The first event delivers
// the full pre-existing result set tagged "added"; every event after that
// carries the refreshed snapshot plus the individual change. Events are
// emitted from a single goroutine, so callbacks never overlap.
func (f *Feed) Subscribe(ctx context.Context, flt watch.Filter, onEvent watch.EventFunc, onError watch.ErrorFunc) (func(), error) {
	filter, err := reservationFilter(flt)
	if err != nil {
		return nil, err
	}
	if !IsReplicaSet() {
		return nil, ErrChangeStreamsUnavailable
	}

	// The subscription outlives the caller's request context; only its own
	// stop function ends it.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := f.collection.Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{
		feed:    f,
		flt:     flt,
		filter:  filter,
		onEvent: onEvent,
		onError: onError,
		docs:    make(map[bson.ObjectID]reservations.Reservation),
		cancel:  cancel,
	}
	go sub.run(streamCtx, stream)

	return sub.stop, nil
}

// subscription is the server-side half of one watcher. It owns the doc map
// that turns raw change-stream events into (snapshot, changes) pairs.
type subscription struct {
	feed    *Feed
	flt     watch.Filter
	filter  bson.M
	onEvent watch.EventFunc
	onError watch.ErrorFunc

	docs map[bson.ObjectID]reservations.Reservation

	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
}

// stop releases the subscription. Idempotent, and safe on an already-failed
// subscription.
func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
}

func (s *subscription) fail(err error) {
	if s.stopped.Swap(true) {
		return
	}
	s.cancel()
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *subscription) run(ctx context.Context, stream *mongo.ChangeStream) {
	defer func() {
		if cerr := stream.Close(context.Background()); cerr != nil {
			logger.L().Debug("failed to close change stream", "error", cerr)
		}
	}()

	// Initial snapshot. The stream is already open, so a write landing
	// between Find and the first Next is replayed as a change, not lost.
	initial, err := s.feed.Query(ctx, s.flt)
	if err != nil {
		s.fail(err)
		return
	}

	changes := make([]watch.Change, 0, len(initial))
	for _, r := range initial {
		s.docs[r.ID] = r
		changes = append(changes, watch.Change{Kind: watch.ChangeAdded, Reservation: r})
	}
	s.emit(changes)

	for stream.Next(ctx) {
		var ev changeEvent
		if derr := stream.Decode(&ev); derr != nil {
			s.fail(derr)
			return
		}
		if chs := s.apply(ev); len(chs) > 0 {
			s.emit(chs)
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		s.fail(err)
	}
}

func (s *subscription) emit(changes []watch.Change) {
	if s.stopped.Load() {
		return
	}
	snapshot := make([]reservations.Reservation, 0, len(s.docs))
	for _, r := range s.docs {
		snapshot = append(snapshot, r)
	}
	// map iteration order is random; emit in id order so consumers see the
	// same snapshot for the same doc set
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID.Hex() < snapshot[j].ID.Hex()
	})
	s.onEvent(snapshot, changes)
}

// apply folds one raw stream event into the doc map and returns the change
// list the watcher sees. A document updated out of the filter window is
// reported as removed; a delete of an untracked document is silence.
func (s *subscription) apply(ev changeEvent) []watch.Change {
	switch ev.OperationType {
	case "insert", "update", "replace":
		doc := ev.FullDocument
		if doc.ID.IsZero() {
			// fullDocument lookup can miss when the doc was deleted right
			// behind the update; treat like a delete of the tracked copy.
			return s.remove(ev.DocumentKey.ID)
		}
		if !s.flt.Matches(&doc) {
			return s.remove(doc.ID)
		}
		_, known := s.docs[doc.ID]
		s.docs[doc.ID] = doc
		kind := watch.ChangeAdded
		if known {
			kind = watch.ChangeModified
		}
		return []watch.Change{{Kind: kind, Reservation: doc}}

	case "delete":
		return s.remove(ev.DocumentKey.ID)
	}
	return nil
}

func (s *subscription) remove(id bson.ObjectID) []watch.Change {
	prev, ok := s.docs[id]
	if !ok {
		return nil
	}
	delete(s.docs, id)
	return []watch.Change{{Kind: watch.ChangeRemoved, Reservation: prev}}
}

// changeEvent is the slice of a raw change-stream document we care about.
type changeEvent struct {
	OperationType string                   `bson:"operationType"`
	FullDocument  reservations.Reservation `bson:"fullDocument,omitempty"`
	DocumentKey   struct {
		ID bson.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}
