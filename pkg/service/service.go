// Package service defines the logical identity of a remote dependency.
//
// A Service names a remote API independently of how many physical endpoints
// back it. It is a comparable value type and is safe to use as a map key.
package service

import (
	"fmt"
	"strings"
)

// separator joins the name and discriminator in the string form.
const separator = "#"

// Service identifies a remote dependency.
// The zero value is not a valid service.
type Service struct {
	// Name is the logical service name (e.g., "billing")
	Name string

	// Discriminator optionally distinguishes several bindings of the same
	// service name (e.g., "eu", "readonly").
	Discriminator string
}

// New returns a Service with the given name.
func New(name string) Service {
	return Service{Name: name}
}

// NewWithDiscriminator returns a Service with a name and a discriminator.
func NewWithDiscriminator(name, discriminator string) Service {
	return Service{Name: name, Discriminator: discriminator}
}

// Parse parses the string form produced by String ("name" or "name#disc").
func Parse(s string) (Service, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Service{}, fmt.Errorf("service name is empty")
	}

	name, disc, _ := strings.Cut(s, separator)
	if name == "" {
		return Service{}, fmt.Errorf("service %q has an empty name", s)
	}

	return Service{Name: name, Discriminator: disc}, nil
}

// String returns "name" or "name#discriminator".
func (s Service) String() string {
	if s.Discriminator == "" {
		return s.Name
	}
	return s.Name + separator + s.Discriminator
}

// IsZero reports whether s has no name.
func (s Service) IsZero() bool {
	return s.Name == ""
}
