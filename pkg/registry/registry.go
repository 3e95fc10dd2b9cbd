// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed defaults.json
var defaultsJSON []byte

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Registry is an immutable, id-indexed view over the notification definitions.
type Registry struct {
	version string
	defs    map[string]Definition
}

// Rendered is a definition with its placeholders filled in.
type Rendered struct {
	Title        string
	Body         string
	Subject      string
	HTML         string
	Topic        string
	Data         map[string]string
	TemplateData map[string]string
}

// LoadRegistry reads and validates a registry file without merging defaults.
func LoadRegistry(path string) (*NotificationRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates raw registry JSON against the registry schema and decodes it.
func Parse(data []byte) (*NotificationRegistry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(registrySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("registry is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("registry schema violations: %s", strings.Join(msgs, "; "))
	}

	var reg NotificationRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	if err := Validate(&reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks the rules the JSON schema cannot express.
func Validate(reg *NotificationRegistry) error {
	ids := make(map[string]bool, len(reg.Definitions))
	for _, d := range reg.Definitions {
		if d.ID == "" {
			return fmt.Errorf("definition missing required field: id")
		}
		if ids[d.ID] {
			return fmt.Errorf("duplicate definition id: %s", d.ID)
		}
		ids[d.ID] = true

		if d.HasChannel(ChannelPush) && d.Title == "" {
			return fmt.Errorf("definition %s delivers push but has no title", d.ID)
		}
		if d.HasChannel(ChannelEmail) && d.TemplateKey == "" && (d.Subject == "" || d.HTML == "") {
			return fmt.Errorf("definition %s delivers email but has neither templateKey nor subject and html", d.ID)
		}
		if d.Audience == AudienceTopic {
			if d.Topic == "" {
				return fmt.Errorf("definition %s targets a topic but names none", d.ID)
			}
			if d.HasChannel(ChannelEmail) {
				return fmt.Errorf("definition %s: topic audience supports push only", d.ID)
			}
		}
	}
	return nil
}

// Default returns the embedded registry.
func Default() *Registry {
	reg, err := Parse(defaultsJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded notification registry is invalid: %v", err))
	}
	return newRegistry(reg)
}

// Load returns the embedded registry with the definitions in path merged
// over it by id. An empty path yields the embedded registry.
func Load(path string) (*Registry, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	override, err := LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry %s: %w", path, err)
	}
	for _, d := range override.Definitions {
		base.defs[d.ID] = d
	}
	if override.Version != "" {
		base.version = override.Version
	}
	return base, nil
}

func newRegistry(reg *NotificationRegistry) *Registry {
	r := &Registry{version: reg.Version, defs: make(map[string]Definition, len(reg.Definitions))}
	for _, d := range reg.Definitions {
		r.defs[d.ID] = d
	}
	return r
}

func (r *Registry) Version() string { return r.version }

// Lookup returns the definition with the given id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// Definitions returns all definitions sorted by id.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render fills every copy field of d from vars. Missing keys render empty;
// values placed into HTML are escaped.
func Render(d Definition, vars map[string]string) Rendered {
	r := Rendered{
		Title:   Expand(d.Title, vars),
		Body:    Expand(d.Body, vars),
		Subject: Expand(d.Subject, vars),
		HTML:    expand(d.HTML, vars, html.EscapeString),
		Topic:   Expand(d.Topic, vars),
		Data:    map[string]string{"notificationType": d.NotificationType},
	}
	for k, v := range d.Data {
		r.Data[k] = Expand(v, vars)
	}
	if len(d.TemplateData) > 0 {
		r.TemplateData = make(map[string]string, len(d.TemplateData))
		for k, v := range d.TemplateData {
			r.TemplateData[k] = Expand(v, vars)
		}
	}
	return r
}

// Expand replaces {{key}} placeholders in tmpl.
func Expand(tmpl string, vars map[string]string) string {
	return expand(tmpl, vars, nil)
}

func expand(tmpl string, vars map[string]string, escape func(string) string) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v := vars[key]
		if escape != nil {
			return escape(v)
		}
		return v
	})
}

// Save writes reg to path as indented JSON.
func Save(reg *NotificationRegistry, path string) error {
	if err := Validate(reg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Export returns the registry in its on-disk shape.
func (r *Registry) Export() *NotificationRegistry {
	return &NotificationRegistry{Version: r.version, Definitions: r.Definitions()}
}
