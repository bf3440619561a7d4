package provider

import (
	"fmt"

	"tabletalk/internal/domain"
)

// New constructs and initializes a provider of the given kind. Options
// are validated against the kind's schema before construction, so an
// initialized provider never saw a malformed options map.
//
// Configuration errors (schema violation, missing credential) wrap
// domain.ErrConfiguration and must halt setup of that provider; any
// other error is recoverable and the provider may simply be retried or
// left unregistered.
func New(kind domain.Kind, name string, opts map[string]any) (domain.Provider, error) {
	if err := ValidateOptions(kind, opts); err != nil {
		return nil, err
	}

	var p domain.Provider
	switch kind {
	case domain.KindOllama:
		p = NewOllama(name)
	case domain.KindOpenAI:
		p = NewOpenAI(name)
	case domain.KindBedrock:
		p = NewBedrock(name)
	default:
		return nil, fmt.Errorf("%w: unsupported provider kind %q", domain.ErrConfiguration, kind)
	}

	if err := p.Initialize(opts); err != nil {
		return nil, fmt.Errorf("initializing %s provider %q: %w", kind, name, err)
	}

	return p, nil
}
