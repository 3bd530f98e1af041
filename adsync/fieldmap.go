package adsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFieldMap parses "Source=Canonical" pairs separated by new lines or commas.
func ParseFieldMap(text string) (fm FieldMap, err error) {
	for _, line := range strings.Split(text, "\n") {
		for _, pair := range strings.Split(line, ",") {
			pair = strings.TrimSpace(pair)
			if len(pair) == 0 {
				continue
			}
			var pos = strings.IndexAny(pair, "=:")
			if pos <= 0 {
				err = fmt.Errorf("field map entry \"%s\": expected Source=Canonical", pair)
				return
			}
			fm = append(fm, FieldMapping{
				Source:    strings.TrimSpace(pair[:pos]),
				Canonical: strings.TrimSpace(pair[pos+1:]),
			})
		}
	}
	return
}

// FieldMapFromMap builds a FieldMap ordered by source column name.
func FieldMapFromMap(m map[string]string) (fm FieldMap) {
	var sources = make([]string, 0, len(m))
	for k := range m {
		sources = append(sources, k)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fm = append(fm, FieldMapping{Source: s, Canonical: m[s]})
	}
	return
}

func (fm FieldMap) Sources() (result []string) {
	for _, m := range fm {
		result = append(result, m.Source)
	}
	return
}

func (fm FieldMap) Canonicals() (result []string) {
	for _, m := range fm {
		result = append(result, m.Canonical)
	}
	return
}

// HasCanonical reports whether some source column maps onto the canonical field.
func (fm FieldMap) HasCanonical(canonical string) bool {
	for _, m := range fm {
		if m.Canonical == canonical {
			return true
		}
	}
	return false
}

// Validate checks that names are non-empty and that neither side repeats.
func (fm FieldMap) Validate() error {
	if len(fm) == 0 {
		return errors.New("field map is empty")
	}
	var sources = NewSet[string]()
	var canonicals = NewSet[string]()
	for _, m := range fm {
		if len(m.Source) == 0 || len(m.Canonical) == 0 {
			return fmt.Errorf("field map entry \"%s=%s\": empty name", m.Source, m.Canonical)
		}
		if sources.Has(m.Source) {
			return fmt.Errorf("field map source column \"%s\" is mapped more than once", m.Source)
		}
		if canonicals.Has(m.Canonical) {
			return fmt.Errorf("field map canonical field \"%s\" is mapped more than once", m.Canonical)
		}
		sources.Add(m.Source)
		canonicals.Add(m.Canonical)
	}
	return nil
}

func (fm FieldMap) String() string {
	var pairs = make([]string, 0, len(fm))
	for _, m := range fm {
		pairs = append(pairs, m.Source+"="+m.Canonical)
	}
	return strings.Join(pairs, ",")
}

// UnmarshalYAML accepts a mapping (declaration order is kept), a list of
// {source, canonical} objects, or the "Source=Canonical" text form.
func (fm *FieldMap) UnmarshalYAML(value *yaml.Node) (err error) {
	var result FieldMap
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			result = append(result, FieldMapping{
				Source:    value.Content[i].Value,
				Canonical: value.Content[i+1].Value,
			})
		}
	case yaml.SequenceNode:
		var items []struct {
			Source    string `yaml:"source"`
			Canonical string `yaml:"canonical"`
		}
		if err = value.Decode(&items); err != nil {
			return
		}
		for _, item := range items {
			result = append(result, FieldMapping{Source: item.Source, Canonical: item.Canonical})
		}
	case yaml.ScalarNode:
		if result, err = ParseFieldMap(value.Value); err != nil {
			return
		}
	default:
		return fmt.Errorf("line %d: unsupported field map format", value.Line)
	}
	*fm = result
	return
}
