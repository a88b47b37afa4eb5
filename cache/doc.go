// Package cache maps the key of a memoized call to the storage location of
// its result.
//
// # Backend Interface
//
// A [Backend] serves one prefix, the namespace of a single memoized
// function. Before use it is told once, through [Backend.Configure], whether
// it runs in [ModeKeyed] (one entry per key) or [ModeSingleton] (one entry
// for the whole prefix, keys ignored). Using a backend before that is an
// [ErrModeNotSet] error; switching modes later is an [ErrModeConflict].
//
// Scalar results are written and read whole with [Backend.Set] and
// [Backend.Get]. Sequence results are written one item at a time through a
// [SequenceWriter] from [Backend.OpenSequence] and replayed lazily with
// [Backend.Iterate].
//
// # Implementations
//
//   - [NewFiles]: one file per entry, encoded by a serializer.Serializer.
//     Keyed entries live at <dir>/<key>.<ext>, the singleton entry at
//     <dir>.<ext>. Sequences need a serializer.Chunked format; otherwise the
//     sequence operations fail with [ErrNotChunked].
//
//   - [NewOneFile]: every entry of the prefix in one document at
//     <dir>.<ext>. Rewritten whole on each Set. No sequences.
//
//   - [NewMemory]: process memory only. Values are stored as-is.
//
//   - [NewSQLite]: rows in a SQLite database opened with [OpenSQLite],
//     using [modernc.org/sqlite] (pure Go, no CGO). Values are msgpack
//     encoded; sequence items are rows of their own.
//
//   - [NewRedis]: keys in Redis using [github.com/redis/go-redis/v9].
//     Scalars are msgpack strings, sequence items a Redis list.
//
// # Sequence Commit
//
// With the default [CommitOnComplete] policy a sequence entry is staged
// while it is written (a <file>.partial file, an incomplete row, or an
// unmarked Redis list) and only becomes visible to [Backend.Contains] when
// [SequenceWriter.Commit] is called after the last item. A sequence whose
// producer fails or whose consumer stops early is therefore fetched again
// on the next call rather than replayed short. [CommitEachItem] publishes
// the entry as soon as it is opened.
//
// Entries never expire. Nothing in this package deletes an entry except an
// explicit [Backend.Remove].
package cache
