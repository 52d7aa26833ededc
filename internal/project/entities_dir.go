package project

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

var errEntitiesDirType = errors.New("must be a string or a list of strings")

// EntitiesDir is the normalized form of a service's entities_dir setting.
//
// A bare string becomes a single path with List=false, meaning "load every
// rule file under this directory". A list keeps its order with List=true and
// is resolved into a common parent plus a selector.
type EntitiesDir struct {
	Paths []string
	List  bool
	set   bool
}

// Single returns the string form.
func Single(path string) EntitiesDir {
	return EntitiesDir{Paths: []string{path}, set: true}
}

// Selection returns the list form.
func Selection(paths ...string) EntitiesDir {
	return EntitiesDir{Paths: paths, List: true, set: true}
}

// IsSet reports whether entities_dir was present in the config.
func (d EntitiesDir) IsSet() bool {
	return d.set
}

// String renders the setting the way it would appear in YAML flow style.
func (d EntitiesDir) String() string {
	if !d.List && len(d.Paths) == 1 {
		return d.Paths[0]
	}
	return "[" + strings.Join(d.Paths, ", ") + "]"
}

// UnmarshalYAML accepts either a scalar string or a sequence of strings.
func (d *EntitiesDir) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*d = EntitiesDir{}
			return nil
		}
		if node.Tag != "!!str" {
			return errEntitiesDirType
		}
		*d = Single(node.Value)
		return nil
	case yaml.SequenceNode:
		paths := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return errEntitiesDirType
			}
			paths = append(paths, item.Value)
		}
		*d = Selection(paths...)
		return nil
	default:
		return errEntitiesDirType
	}
}
