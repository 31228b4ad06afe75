// Package checkpoint stores pagination cursors so an interrupted download
// can continue where it stopped.
//
// A checkpoint records the next page URL and how many records were already
// delivered. Response bodies are never stored.
//
// # Basic Usage
//
//	// Create store (Redis shares checkpoints between processes)
//	store := checkpoint.NewRedisStore(redisClient, checkpoint.DefaultTTL)
//
//	key := checkpoint.Key{
//		Endpoint: "timeseries_events",
//		Path:     "timeseries/6f1a/data/",
//		Params:   params.Map(),
//	}
//
//	cp, err := store.Get(ctx, key)
//	if errors.Is(err, checkpoint.ErrNotFound) {
//		// start from the first page
//	}
//
// # Stores
//
//   - RedisStore keeps checkpoints as JSON values with a Redis TTL
//   - MemoryStore keeps them in process, for tests and one-shot CLIs
//
// # Metrics
//
//   - lizard_checkpoint_operations_total{store,operation,result}
//   - lizard_checkpoint_errors_total{store,operation}
package checkpoint
