// Package console holds the process-wide configuration surface: the parsed
// command line and the console-variable registry.
//
// Both stores are initialized once at startup and read-mostly afterwards.
// Variable writes happen on the main thread (typically from UI); reads may
// come from any goroutine and are internally synchronized. Declarations
// return typed handles, so render-time code never does string lookups.
package console
