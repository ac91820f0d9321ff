// Package logging configures the process-wide structured logger.
//
// Level and format come from LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT
// (json|text). Output always goes to stderr unless a writer is supplied.
package logging
