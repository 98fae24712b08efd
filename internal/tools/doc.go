// Package tools dispatches plans to external binaries. Each tool declares
// what it can realize through CanHandle; the dispatcher walks the ordered
// tool list and the first capable tool executes. mkvpropedit covers
// in-place metadata edits on matroska, mkvmerge covers pure remuxes, and
// ffmpeg covers everything else including transcodes and downmix synthesis.
package tools
