// Package logs reads the daemon's log files for `matchreel logs`.
//
// Reads are bounded: Last keeps a ring of the requested lines and Since only
// scans bytes past a known offset. Follow polls from an offset until the
// context ends, restarting from the top when the file shrinks after rotation.
package logs
