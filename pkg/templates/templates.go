// Package templates loads event-type presets: display color and the role
// slots a new event of that type opens by default.
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Slot is a default role opened on new events of a type.
type Slot struct {
	RoleName     string `yaml:"role" json:"role_name"`
	MaxMusicians int    `yaml:"max_musicians" json:"max_musicians"`
}

// EventType is a named preset.
type EventType struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
	Slots []Slot `yaml:"slots" json:"slots"`
}

type file struct {
	EventTypes []EventType `yaml:"event_types"`
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Catalog indexes event types by case-insensitive name.
type Catalog struct {
	types map[string]EventType
	order []string
}

// Empty returns a catalog without types.
func Empty() *Catalog {
	return &Catalog{types: map[string]EventType{}}
}

// Load reads a catalog from path. An empty path or a missing file yields an
// empty catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("read event templates: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse event templates: %w", err)
	}

	c := Empty()
	for i, et := range f.EventTypes {
		et.Name = strings.TrimSpace(et.Name)
		if et.Name == "" {
			return nil, fmt.Errorf("event type %d: name is required", i)
		}
		key := strings.ToLower(et.Name)
		if _, dup := c.types[key]; dup {
			return nil, fmt.Errorf("event type %q declared twice", et.Name)
		}
		if et.Color != "" && !colorPattern.MatchString(et.Color) {
			return nil, fmt.Errorf("event type %q: color %q is not #RRGGBB", et.Name, et.Color)
		}
		for j := range et.Slots {
			et.Slots[j].RoleName = strings.TrimSpace(et.Slots[j].RoleName)
			if et.Slots[j].RoleName == "" {
				return nil, fmt.Errorf("event type %q slot %d: role is required", et.Name, j)
			}
			if et.Slots[j].MaxMusicians <= 0 {
				et.Slots[j].MaxMusicians = 1
			}
		}
		c.types[key] = et
		c.order = append(c.order, key)
	}
	return c, nil
}

// Lookup finds an event type by name.
func (c *Catalog) Lookup(name string) (EventType, bool) {
	if c == nil {
		return EventType{}, false
	}
	et, ok := c.types[strings.ToLower(strings.TrimSpace(name))]
	return et, ok
}

// All returns the event types in file order.
func (c *Catalog) All() []EventType {
	if c == nil {
		return nil
	}
	out := make([]EventType, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.types[key])
	}
	return out
}
