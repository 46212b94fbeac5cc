// File: api/registry.go
package api

import "github.com/lguibr/harness/actors"

// NewRegistry returns a registry of every capability of the harness.
func NewRegistry() *actors.Registry {
	return actors.MustRegistry(
		CommandListenerEventizer,
		SuiteListenerEventizer,
		TestClassFinderListenerEventizer,
	)
}
