// Package graph discovers typed relationships between narrative entities and
// serves bounded network views over them.
//
// Discovery scans chunks for co-occurrences of known entities, matched
// case-insensitively on canonical names and aliases with word boundaries
// enforced. Each unordered pair accumulates evidence across the run:
// co-occurrence count, a distance-based context quality per sighting, and up
// to five snippets spanning both mentions.
//
// Pair classification:
//
//   - character + location  -> LOCATED_IN (character as source)
//   - character + character -> INTERACTS_WITH, downgraded to MENTIONS when
//     the connecting text denies contact ("never", "without", ...)
//   - theme pairs and location pairs -> MENTIONS
//
// Strength is always recomputed from the full evidence set via
// types.ComputeStrength and written with a single upsert keyed by
// (source, target), so running discovery twice over the same text leaves the
// stored graph unchanged.
//
// Network produces a breadth-first bounded-depth view around one entity with
// a minimum-strength filter; nodes carry their traversal depth.
package graph
