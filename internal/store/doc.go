// Package store provides Redis-backed persistence for tags and
// applications.
//
// Redis implements both tags.Store and applications.Store. Every record is
// a JSON value in a Redis hash keyed by guild, so one HGETALL lists a whole
// guild. Tag use counters live in a separate hash and are bumped with
// HINCRBY, which keeps invocations from rewriting tag documents.
//
// Example usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	st := store.NewRedis(client, "tags", logger)
//
//	svc := tags.NewService(st, interpreter, catalog, tags.DefaultLimits(), logger)
package store
