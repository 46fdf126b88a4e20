package reasoner

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the reasoner processor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "reasoner",
		Factory:     NewComponent,
		Schema:      reasonerSchema,
		Type:        "processor",
		Protocol:    "rdf",
		Domain:      "repository",
		Description: "Maintains hierarchy forests and derived metadata for repository entries",
		Version:     "1.0.0",
	})
}
