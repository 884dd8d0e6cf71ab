// Package segment turns raw manuscript text into position-addressable
// structural units: overlapping content chunks, a per-line position index,
// and scene boundaries.
//
// The three walkers are independent and run over the same text:
//
//	chunker := segment.New()
//	chunks := chunker.ChunkText(projectID, fileID, text)
//
//	detector := segment.NewSceneDetector()
//	scenes, err := detector.DetectScenes(projectID, fileID, text)
//
//	indexer := segment.NewPositionIndexer()
//	entries := indexer.IndexText(projectID, fileID, version, text, scenes)
//
// # Chunking Strategy
//
// Chunks target a fixed rune length with a fractional overlap between
// consecutive windows. Cuts prefer paragraph breaks, then sentence ends,
// within a bounded backward search; only when no boundary is close enough
// does a chunk cut mid-sentence. Every chunk records exact [start,end) rune
// offsets into the original text, so chunks map back onto position-index
// entries and scene boundaries.
//
// # Scene Detection
//
// Scene boundaries come from heuristic markers: chapter headings ("Chapter
// IV", "Prologue"), explicit break glyphs (***, # # #, ---), and runs of
// three or more blank lines. Whatever the scan produces, the detector
// enforces the ordered/non-overlapping post-condition before returning.
package segment
