// Package orchestrator drives jobs through their lifecycle: claim, classify,
// retrieve knowledge, dispatch capabilities, gate quality, and settle the
// final status. It owns every status transition a job makes after it has
// been accepted into the store.
package orchestrator
