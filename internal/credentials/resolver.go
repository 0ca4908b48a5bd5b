// Package credentials resolves the secret variables named by an integration
// config. Lookups go through an injected Resolver instead of reading the
// process environment directly.
package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// Resolver maps a variable name to a secret.
type Resolver interface {
	Lookup(name string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (string, bool)

// Lookup calls f.
func (f ResolverFunc) Lookup(name string) (string, bool) { return f(name) }

// Env resolves from the process environment.
var Env Resolver = ResolverFunc(os.LookupEnv)

// Map resolves from a fixed set of values.
type Map map[string]string

// Lookup returns the value for name.
func (m Map) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Chain tries each resolver in order.
type Chain []Resolver

// Lookup returns the first non-empty value.
func (c Chain) Lookup(name string) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if v, ok := r.Lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// LoadDotenv reads a dotenv file into a Map without touching the environment.
func LoadDotenv(path string) (Map, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read dotenv %s: %w", path, err)
	}
	return Map(values), nil
}

// Resolve returns both credentials or reports them absent. It never returns
// a partial pair.
func Resolve(r Resolver, refs models.CredentialRefs) (models.Credentials, bool) {
	if r == nil {
		return models.Credentials{}, false
	}
	userVar := strings.TrimSpace(refs.UsernameVar)
	passVar := strings.TrimSpace(refs.PasswordVar)
	if userVar == "" || passVar == "" {
		return models.Credentials{}, false
	}
	user, ok := r.Lookup(userVar)
	if !ok || user == "" {
		return models.Credentials{}, false
	}
	pass, ok := r.Lookup(passVar)
	if !ok || pass == "" {
		return models.Credentials{}, false
	}
	return models.Credentials{Username: user, Password: pass}, true
}
