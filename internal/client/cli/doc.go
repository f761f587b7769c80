// Package cli is the nutrisync command line: the composition root that
// wires the local store, the remote gateway, the connectivity watcher, the
// offline-first services and the sync engine, and the cobra commands on
// top of them.
//
// Commands
//
//	sync                       drain the outbox and pull remote changes once
//	status                     show sync state, backlog and items needing attention
//	watch                      keep syncing in the background until interrupted
//	outbox                     list queued mutations
//	food  add|list|rm          manage foods
//	entry add|list|rm          manage diary entries
//	weight add|edit|list|rm    manage weight samples
//	water add|edit|list|rm     manage water intake
//
// --offline keeps the client offline, --demo talks to an in-memory server
// instead of the configured one.
package cli
