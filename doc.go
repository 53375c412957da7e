/*
Package opj implements an ordered, append-only persistent journal.

We implement:

1. A sorted in-memory write buffer with a crash-safe companion log, so
recent appends survive a restart before they are ever flushed to disk.

2. Immutable, sorted on-disk segments, published via a write-hidden-
then-rename protocol so a crash mid-write never exposes a partial
segment to a reader.

3. A background compactor that repeatedly merges the two smallest
segments into one, keeping the number of segments a reader must merge
across bounded over time.

4. In-order iteration and range selection across the whole journal,
merging the buffer and every live segment lazily.

# Technical details

**Records.** A record's type and byte width are fixed for a journal's
lifetime by its Codec, supplied once at New or Open. There is no schema
evolution; a mismatched Codec.Descriptor() between what is persisted and
what is requested is rejected at Open.

**Durability.** Every buffer append is fsynced (data-only, where the
platform allows it) before returning. Segment publication fsyncs the
hidden file, then renames it into place; retirement is the same rename
run in reverse. A segment file whose name still starts with "_" after a
crash is neither fully written nor fully retired, and is unlinked
unconditionally the next time the journal is opened.

**Compaction.** The compactor never initiates contact with the journal
façade; it only accepts segments via Enqueue and reports outcomes via
Results, to avoid a reference cycle between the two packages. The
façade owns a draining goroutine that applies each outcome to its
segment set and re-enqueues the merge output.
*/
package opj
