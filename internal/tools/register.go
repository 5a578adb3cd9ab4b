package tools

import (
	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Deps collects the domain components every concrete tool implementation
// is built from. cmd/forgetfuld assembles one Deps per running instance
// and passes it to RegisterAll.
type Deps struct {
	Repo      storage.Repository
	Linker    *autolink.Linker
	Compose   *composer.Composer
	Traverser *graph.Traverser
}

// RegisterAll registers every concrete tool, surfaced through the
// registry, into r. Called once at startup, before the registry is
// handed to the meta-tool dispatcher.
func RegisterAll(r *Registry, deps Deps) error {
	registrars := []func(*Registry, Deps) error{
		registerMemoryTools,
		registerLinkingTools,
		registerProjectTools,
		registerDocumentTools,
		registerCodeArtifactTools,
		registerEntityTools,
		registerGraphTools,
	}
	for _, register := range registrars {
		if err := register(r, deps); err != nil {
			return err
		}
	}
	return nil
}
