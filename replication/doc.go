// Package replication applies bit-packed delta snapshots from a remote peer
// to a local ecs.Storage.
//
// A snapshot is a sequence of entity frames. Each frame names a remote
// EntityID, optionally carries meta flags (ownership, orphan, deleted) and
// then a list of component frames (Construct, Update, Destruct) whose field
// values are packed according to the schema layouts. The Receiver resolves
// every EntityID through a Mapper, reconciles the entity's lifecycle, and
// either applies the component frames or skips them bit-exactly so the
// stream stays aligned.
//
// Recoverable anomalies (stale references, ownership races, unknown schema
// ids) are logged and skipped. Only a desynchronized stream is an error.
//
// A Receiver is not safe for concurrent use. Run it from one goroutine per
// store, typically through a ReceiveSystem registered with an ecs.Scheduler.
package replication
