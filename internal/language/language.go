// Package language maps a task's language identifier to the sandbox
// image, default entry file, and interpreter used to run it.
package language

import (
	"errors"
	"fmt"

	"github.com/palcode-dev/palrun/internal/config"
)

// ErrInvalidLanguage is returned for identifiers outside the supported set.
// Unknown languages are rejected before any resource is allocated.
var ErrInvalidLanguage = errors.New("invalid language")

// Language is a supported language identifier.
type Language string

const (
	Python Language = "python"
	NodeJS Language = "nodejs"
	Bash   Language = "bash"
)

// Spec is the immutable execution recipe for one language. The image
// reference is resolved once at registry construction and never changes
// for the lifetime of the process.
type Spec struct {
	Language  Language
	Image     string
	EntryFile string

	interpreter string
}

// Command returns the argv to run the given entry file inside the sandbox.
func (s Spec) Command(entryFile string) []string {
	return []string{s.interpreter, entryFile}
}

// Registry resolves language identifiers to Specs. Pure lookup, no side
// effects after construction.
type Registry struct {
	specs map[Language]Spec
}

// NewRegistry builds the registry from configured image versions.
func NewRegistry(versions config.LanguageVersions) *Registry {
	specs := map[Language]Spec{
		Python: {
			Language:    Python,
			Image:       "palcode/python:" + versions.Python,
			EntryFile:   "index.py",
			interpreter: "python",
		},
		NodeJS: {
			Language:    NodeJS,
			Image:       "palcode/node:" + versions.NodeJS,
			EntryFile:   "index.js",
			interpreter: "node",
		},
		Bash: {
			Language:    Bash,
			Image:       "palcode/bash:" + versions.Bash,
			EntryFile:   "main.sh",
			interpreter: "bash",
		},
	}
	return &Registry{specs: specs}
}

// Resolve returns the Spec for a language identifier.
func (r *Registry) Resolve(lang string) (Spec, error) {
	spec, ok := r.specs[Language(lang)]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	return spec, nil
}

// IsValid reports whether lang is a supported identifier.
func (r *Registry) IsValid(lang string) bool {
	_, ok := r.specs[Language(lang)]
	return ok
}

// DefaultEntryFile returns the entry file name for a language.
func (r *Registry) DefaultEntryFile(lang string) (string, error) {
	spec, err := r.Resolve(lang)
	if err != nil {
		return "", err
	}
	return spec.EntryFile, nil
}
