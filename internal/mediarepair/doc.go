// Package mediarepair inspects ISO base media (MP4/MOV) containers and moves
// the movie index box ahead of the media data so browsers can stream the file
// progressively.
//
// Repair runs a fixed chain of strategies. A metadata rewriting tool runs in
// place first; a stream-copy remux to a temporary file follows, which is renamed
// over the original only after the remuxer exits cleanly; a byte-level
// inspection runs last and never rewrites the file. A ".backup" copy of the
// original is written before the first strategy runs and is never overwritten.
package mediarepair
