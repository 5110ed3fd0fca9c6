// Package logs reads the daemon and tool log files for the CLI.
//
// Last returns the final lines of a file with bounded memory, and Follow
// streams lines appended after an offset until the context ends, starting
// over when lumberjack rotates the file out from under it.
package logs
