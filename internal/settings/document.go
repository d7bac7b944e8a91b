package settings

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Section names used by pimgr. Any other section is carried through
// untouched.
const (
	SectionPihole      = "pihole"
	SectionRouter      = "router"
	SectionPreferences = "preferences"
)

// DefaultWebURL is the Pi-hole admin URL on the appliance itself.
const DefaultWebURL = "http://localhost/admin"

// Section is an ordered key/value mapping.
type Section struct {
	keys   []string
	values map[string]Value
	notes  map[string]keyNotes
}

func newSection() *Section {
	return &Section{values: make(map[string]Value), notes: make(map[string]keyNotes)}
}

// Get returns the value for key.
func (s *Section) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, appending new keys at the end.
func (s *Section) Set(key string, value Value) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Delete removes key.
func (s *Section) Delete(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	delete(s.notes, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in file order.
func (s *Section) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s.keys...)
}

// Len returns the number of keys.
func (s *Section) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *Section) clone() *Section {
	c := &Section{
		keys:   append([]string{}, s.keys...),
		values: make(map[string]Value, len(s.values)),
		notes:  make(map[string]keyNotes, len(s.notes)),
	}
	for k, v := range s.values {
		c.values[k] = v.clone()
	}
	for k, n := range s.notes {
		c.notes[k] = n
	}
	return c
}

// entry is one top-level item: a mapping section, or any other YAML value
// kept as-is.
type entry struct {
	section *Section
	other   Value
	notes   keyNotes
}

// Document is the ordered settings document.
type Document struct {
	names   []string
	entries map[string]*entry
	// head and foot comments of the document and of its top mapping.
	docNotes comments
	topNotes comments
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{entries: make(map[string]*entry)}
}

// DefaultDocument is the document used when no usable file exists.
func DefaultDocument() *Document {
	d := NewDocument()
	d.Set(SectionPihole, "web_url", String(DefaultWebURL))
	d.Set(SectionPreferences, "show_tips", Bool(true))
	d.Set(SectionPreferences, "confirm_actions", Bool(true))
	return d
}

// Section returns the named mapping section, or nil when absent or when the
// top-level value is not a mapping.
func (d *Document) Section(name string) *Section {
	e, ok := d.entries[name]
	if !ok {
		return nil
	}
	return e.section
}

// Sections returns top-level names in file order.
func (d *Document) Sections() []string {
	return append([]string{}, d.names...)
}

// Get returns section.key.
func (d *Document) Get(section, key string) (Value, bool) {
	return d.Section(section).Get(key)
}

// Set stores section.key, creating the section if needed. A top-level
// non-mapping value under the same name is replaced by a new section.
func (d *Document) Set(section, key string, value Value) {
	e, ok := d.entries[section]
	if !ok {
		e = &entry{}
		d.entries[section] = e
		d.names = append(d.names, section)
	}
	if e.section == nil {
		e.section = newSection()
		e.other = Value{}
		e.notes.value = comments{}
	}
	e.section.Set(key, value)
}

// Delete removes section.key.
func (d *Document) Delete(section, key string) bool {
	s := d.Section(section)
	if s == nil {
		return false
	}
	return s.Delete(key)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := NewDocument()
	c.names = append(c.names, d.names...)
	c.docNotes, c.topNotes = d.docNotes, d.topNotes
	for name, e := range d.entries {
		ce := &entry{other: e.other.clone(), notes: e.notes}
		if e.section != nil {
			ce.section = e.section.clone()
		}
		c.entries[name] = ce
	}
	return c
}

// Unmarshal parses YAML into a Document. Empty input is an error so the
// caller can fall back to defaults. Aliases and "<<" merge keys are
// expanded, so the document holds plain values only.
func Unmarshal(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("settings document is empty")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("settings document is empty")
	}
	top, err := resolveNode(root.Content[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if top.Kind == yaml.ScalarNode && top.ShortTag() == tagNull {
		return nil, fmt.Errorf("settings document is empty")
	}
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("settings document must be a mapping, got %s", kindName(top.Kind))
	}

	d := NewDocument()
	d.docNotes = commentsOf(&root)
	d.topNotes = commentsOf(top)
	for i := 0; i+1 < len(top.Content); i += 2 {
		name := top.Content[i].Value
		val := top.Content[i+1]

		e := &entry{notes: keyNotes{key: commentsOf(top.Content[i]), value: commentsOf(val)}}
		if val.Kind == yaml.MappingNode {
			e.section = newSection()
			for j := 0; j+1 < len(val.Content); j += 2 {
				k, v := val.Content[j], val.Content[j+1]
				e.section.Set(k.Value, valueFromNode(v))
				e.section.notes[k.Value] = keyNotes{key: commentsOf(k), value: commentsOf(v)}
			}
		} else {
			e.other = valueFromNode(val)
		}
		if _, dup := d.entries[name]; !dup {
			d.names = append(d.names, name)
		}
		d.entries[name] = e
	}
	return d, nil
}

// Marshal renders the document as YAML in its stored order.
func Marshal(d *Document) ([]byte, error) {
	top := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	d.topNotes.apply(top)
	for _, name := range d.names {
		e := d.entries[name]
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: name}
		var val *yaml.Node
		if e.section != nil {
			val = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for _, k := range e.section.keys {
				kn := &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: k}
				vn := e.section.values[k].node()
				notes := e.section.notes[k]
				notes.key.apply(kn)
				notes.value.apply(vn)
				val.Content = append(val.Content, kn, vn)
			}
		} else {
			val = e.other.node()
		}
		e.notes.key.apply(key)
		e.notes.value.apply(val)
		top.Content = append(top.Content, key, val)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{top}}
	d.docNotes.apply(doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
