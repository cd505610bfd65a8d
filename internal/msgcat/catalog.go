package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

const defaultFile = "messages.en.yaml"

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog holds player-facing notices as text/template sources keyed by dotted path
// (system.game_reset, result.checkmate, error.NOT_YOUR_TURN).
// Missing template fields are errors.
type Catalog struct {
    mu        sync.RWMutex
    data      map[string]string
    templates map[string]*template.Template
}

// New loads the embedded English messages, then overrides from every *.yaml in dir.
func New(overrideDir string) (*Catalog, error) {
    c := &Catalog{data: make(map[string]string), templates: make(map[string]*template.Template)}
    raw, err := fs.ReadFile(defaultFiles, defaultFile)
    if err != nil { return nil, fmt.Errorf("read embedded messages: %w", err) }
    flat, err := parseYAMLToFlat(raw)
    if err != nil { return nil, fmt.Errorf("parse embedded messages: %w", err) }
    c.merge(flat)

    if dir := strings.TrimSpace(overrideDir); dir != "" {
        if err := c.applyDir(dir); err != nil { return nil, err }
    }
    return c, nil
}

// Default returns the embedded catalog. It panics only if the embedded file is broken.
func Default() *Catalog {
    c, err := New("")
    if err != nil { panic(err) }
    return c
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return fmt.Errorf("read template dir: %w", err) }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if ext == ".yaml" || ext == ".yml" { files = append(files, e.Name()) }
    }
    sort.Strings(files)
    seen := make(map[string]string) // key -> filename
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := parseYAMLToFlat(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k := range flat {
            if prev, ok := seen[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            seen[k] = name
        }
        c.merge(flat)
    }
    return nil
}

func (c *Catalog) merge(flat map[string]string) {
    c.mu.Lock()
    for k, v := range flat {
        c.data[k] = v
        delete(c.templates, k)
    }
    c.mu.Unlock()
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil { return nil, err }
    flat := make(map[string]string)
    if err := flattenStrings(m, "", flat); err != nil { return nil, err }
    return flat, nil
}

func flattenStrings(src any, prefix string, out map[string]string) error {
    switch v := src.(type) {
    case map[string]any:
        for k, vv := range v {
            key := k
            if prefix != "" { key = prefix + "." + k }
            if err := flattenStrings(vv, key, out); err != nil { return err }
        }
        return nil
    case string:
        if prefix == "" { return errors.New("string value without key prefix") }
        out[prefix] = v
        return nil
    case nil:
        return nil
    default:
        return fmt.Errorf("unsupported value at %s: %T", prefix, v)
    }
}

// Has reports whether key has a template.
func (c *Catalog) Has(key string) bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    _, ok := c.data[strings.TrimSpace(key)]
    return ok
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
    t, err := c.template(strings.TrimSpace(key))
    if err != nil { return "", err }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// RenderOr renders key and falls back when the key is missing or rendering fails.
func (c *Catalog) RenderOr(key string, data any, fallback string) string {
    if c == nil { return fallback }
    s, err := c.Render(key, data)
    if err != nil || strings.TrimSpace(s) == "" { return fallback }
    return s
}

func (c *Catalog) template(key string) (*template.Template, error) {
    c.mu.RLock()
    t, ok := c.templates[key]
    src, found := c.data[key]
    c.mu.RUnlock()
    if ok { return t, nil }
    if !found || strings.TrimSpace(src) == "" { return nil, fmt.Errorf("template not found: %s", key) }
    t, err := template.New(key).Option("missingkey=error").Parse(src)
    if err != nil { return nil, err }
    c.mu.Lock()
    c.templates[key] = t
    c.mu.Unlock()
    return t, nil
}
