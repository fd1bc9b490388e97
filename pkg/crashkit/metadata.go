// metadata.go provides copy-on-write diagnostic metadata.

package crashkit

import "maps"

// Metadata is an immutable two-level map (section → key → value).
// All mutators return a new value; the receiver is never modified, so a
// Metadata can be read from any goroutine without locking.
type Metadata struct {
	sections map[string]map[string]any
}

// MetadataPatch describes a single change applied to a Metadata value.
// Key is empty when a whole section is removed.
type MetadataPatch struct {
	Section string
	Key     string
	Value   any
	Removed bool
}

// NewMetadata builds Metadata from a plain map. The input is copied.
func NewMetadata(sections map[string]map[string]any) Metadata {
	m := Metadata{sections: make(map[string]map[string]any, len(sections))}
	for name, section := range sections {
		m.sections[name] = maps.Clone(section)
	}
	return m
}

// With returns a copy with section.key set to value.
func (m Metadata) With(section, key string, value any) Metadata {
	return m.Apply(MetadataPatch{Section: section, Key: key, Value: value})
}

// WithSection returns a copy with every entry of values merged into section.
func (m Metadata) WithSection(section string, values map[string]any) Metadata {
	out := m.clone()
	merged := maps.Clone(out.sections[section])
	if merged == nil {
		merged = make(map[string]any, len(values))
	}
	maps.Copy(merged, values)
	out.sections[section] = merged
	return out
}

// Without returns a copy with section.key removed. An empty key removes the
// whole section.
func (m Metadata) Without(section, key string) Metadata {
	return m.Apply(MetadataPatch{Section: section, Key: key, Removed: true})
}

// Apply returns a copy with the patch applied.
func (m Metadata) Apply(p MetadataPatch) Metadata {
	out := m.clone()
	switch {
	case p.Removed && p.Key == "":
		delete(out.sections, p.Section)
	case p.Removed:
		section := maps.Clone(out.sections[p.Section])
		delete(section, p.Key)
		if len(section) == 0 {
			delete(out.sections, p.Section)
		} else {
			out.sections[p.Section] = section
		}
	default:
		section := maps.Clone(out.sections[p.Section])
		if section == nil {
			section = make(map[string]any, 1)
		}
		section[p.Key] = p.Value
		out.sections[p.Section] = section
	}
	return out
}

// Get returns a single value.
func (m Metadata) Get(section, key string) (any, bool) {
	v, ok := m.sections[section][key]
	return v, ok
}

// Section returns a copy of one section, or nil.
func (m Metadata) Section(section string) map[string]any {
	return maps.Clone(m.sections[section])
}

// Len is the number of sections.
func (m Metadata) Len() int { return len(m.sections) }

// ToMap returns a deep copy of the sections for serialization or scrubbing.
func (m Metadata) ToMap() map[string]map[string]any {
	out := make(map[string]map[string]any, len(m.sections))
	for name, section := range m.sections {
		out[name] = maps.Clone(section)
	}
	return out
}

// clone copies the outer map only; sections are shared until replaced.
func (m Metadata) clone() Metadata {
	out := Metadata{sections: make(map[string]map[string]any, len(m.sections)+1)}
	maps.Copy(out.sections, m.sections)
	return out
}
