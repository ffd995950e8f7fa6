// Package notes turns free-text match notes into an ordered timeline of
// NoteActions.
//
// The Scene Analyzer consumes the Timeline read-only. LineParser is the
// default normaliser for "MM:SS - text" style notes; callers with richer note
// formats can supply their own Parser.
package notes
