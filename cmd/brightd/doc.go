// Package main hosts the brightd CLI.
//
// `brightd run` starts the long-lived daemon. The remaining commands are
// one-shot: they enumerate displays in-process, act, and exit, so they work
// whether or not a daemon is running.
package main
