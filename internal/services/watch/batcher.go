package watch

import (
	"context"

	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// QueryByIDSet works around the store's membership-filter cap: it splits ids
// into consecutive chunks of at most MaxFilterIDs, runs one one-shot query per
// chunk concurrently, and concatenates the results once every chunk resolved.
// Zero ids issue zero queries. Results are de-duplicated by document id with
// chunk order preserved.
//
// No live subscription exists for the overflow case. Callers that need
// liveness above the cap must poll this instead and surface the degraded mode
// to the UI.
func QueryByIDSet(ctx context.Context, store Store, ids []bson.ObjectID) ([]reservations.Reservation, error) {
	if len(ids) == 0 {
		return []reservations.Reservation{}, nil
	}

	chunks := chunkIDs(ids, MaxFilterIDs)
	results := make([][]reservations.Reservation, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			docs, err := store.Query(gctx, OwnerFilter(chunk))
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeChunks(results), nil
}

// chunkIDs splits ids into consecutive slices of at most size elements.
func chunkIDs(ids []bson.ObjectID, size int) [][]bson.ObjectID {
	var chunks [][]bson.ObjectID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// mergeChunks concatenates per-chunk results, dropping duplicate ids. A
// reservation can only legitimately appear once per chunk, but overlapping id
// sets must not inflate the merged view.
func mergeChunks(results [][]reservations.Reservation) []reservations.Reservation {
	seen := make(map[bson.ObjectID]struct{})
	merged := make([]reservations.Reservation, 0)
	for _, chunk := range results {
		for _, r := range chunk {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}
