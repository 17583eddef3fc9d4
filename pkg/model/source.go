package model

import (
	"encoding/json"
	"fmt"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

// OriginKind tags the variant of an Origin.
type OriginKind int

const (
	OriginURL OriginKind = iota
	OriginGit
	OriginLocal
)

// Origin is a closed sum type over the three places a build source can come
// from. Dispatch is by Kind; no dynamic polymorphism is needed since the set
// of variants is fixed.
type Origin struct {
	Kind OriginKind

	// URL is set for OriginURL and OriginGit.
	URL string
	// Branch is optionally set for OriginGit.
	Branch string
	// Path is set for OriginLocal.
	Path string
}

// Source pairs an Origin with the relative path under the build directory it
// should be staged at.
type Source struct {
	Origin   Origin
	Location string
}

// sourceWire is the flattened on-disk JSON shape from spec §6:
// {"url"|"git_url"|"path": ..., "branch": ..., "location": "rel/path"}.
type sourceWire struct {
	URL      string `json:"url,omitempty"`
	GitURL   string `json:"git_url,omitempty"`
	Path     string `json:"path,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Location string `json:"location"`
}

// MarshalJSON renders the Source in its flattened wire form.
func (s Source) MarshalJSON() ([]byte, error) {
	w := sourceWire{Location: s.Location}
	switch s.Origin.Kind {
	case OriginURL:
		w.URL = s.Origin.URL
	case OriginGit:
		w.GitURL = s.Origin.URL
		w.Branch = s.Origin.Branch
	case OriginLocal:
		w.Path = s.Origin.Path
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a Source from its flattened wire form. Exactly one of
// url/git_url/path must be present.
func (s *Source) UnmarshalJSON(data []byte) error {
	var w sourceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: source: %s", blimperr.ErrInvalidDescriptor, err)
	}

	count := 0
	var origin Origin
	if w.URL != "" {
		count++
		origin = Origin{Kind: OriginURL, URL: w.URL}
	}
	if w.GitURL != "" {
		count++
		origin = Origin{Kind: OriginGit, URL: w.GitURL, Branch: w.Branch}
	}
	if w.Path != "" {
		count++
		origin = Origin{Kind: OriginLocal, Path: w.Path}
	}
	if count != 1 {
		return fmt.Errorf("%w: source must set exactly one of url/git_url/path", blimperr.ErrInvalidDescriptor)
	}

	s.Origin = origin
	s.Location = w.Location
	return nil
}

// BuildDescriptor is the input to the builder: the sources to fetch and the
// package descriptor to seal once the build hook succeeds.
type BuildDescriptor struct {
	Sources []Source `json:"sources"`
	Package Package  `json:"package"`
}
