package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Environment is a flat property set. YAML documents are flattened into dotted
// keys ("server.port") and list items into indexed keys ("publish.kafka.brokers[0]").
type Environment struct {
	properties map[string]string
}

func NewEnvironment() *Environment {
	return &Environment{properties: make(map[string]string)}
}

// Load reads <dir>/application.yaml, then application-<profile>.yaml for each
// entry of application.profiles. Arguments of the form --key=value override
// file values and may themselves select profiles. Missing files are skipped.
func Load(dir string, args []string) (*Environment, error) {
	env := NewEnvironment()

	if err := env.loadOptionalFile(filepath.Join(dir, "application.yaml")); err != nil {
		return nil, err
	}
	env.ApplyArgs(args)

	for _, profile := range env.GetList("application.profiles") {
		name := filepath.Join(dir, fmt.Sprintf("application-%s.yaml", profile))
		if err := env.loadOptionalFile(name); err != nil {
			return nil, err
		}
	}
	// edge case: profile files must not win over the command line
	env.ApplyArgs(args)

	return env, nil
}

func (e *Environment) loadOptionalFile(path string) error {
	err := e.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("file", path).Msg("Config file not found, skipping")
		return nil
	}
	return err
}

func (e *Environment) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := e.LoadYAML(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("file", path).Msg("Loaded config file")
	return nil
}

func (e *Environment) LoadYAML(data []byte) error {
	var source map[string]any
	if err := yaml.Unmarshal(data, &source); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	flatten(e.properties, "", source)
	return nil
}

func flatten(out map[string]string, path string, value any) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 && path != "" {
			out[path] = ""
		}
		for k, child := range v {
			key := k
			if path != "" {
				key = path + "." + k
			}
			flatten(out, key, child)
		}
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, child := range v {
			m[fmt.Sprint(k)] = child
		}
		flatten(out, path, m)
	case []any:
		if len(v) == 0 {
			out[path] = ""
		}
		for i, child := range v {
			flatten(out, fmt.Sprintf("%s[%d]", path, i), child)
		}
	case nil:
		out[path] = ""
	default:
		out[path] = fmt.Sprint(v)
	}
}

// ApplyArgs copies every --key=value argument into the environment.
func (e *Environment) ApplyArgs(args []string) {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !ok || key == "" {
			continue
		}
		e.properties[key] = value
	}
}

func (e *Environment) Set(key, value string) {
	e.properties[key] = value
}

// Get accepts both "a.b" and "${a.b}" and resolves placeholders in the value.
func (e *Environment) Get(key string) (string, bool) {
	return e.get(prepareKey(key), 0)
}

func (e *Environment) get(key string, depth int) (string, bool) {
	v, ok := e.properties[key]
	if !ok {
		return "", false
	}
	return e.resolve(v, depth+1), true
}

// Resolve replaces ${key} placeholders in text; unknown keys are left as is.
func (e *Environment) Resolve(text string) string {
	return e.resolve(text, 0)
}

func (e *Environment) resolve(text string, depth int) string {
	// edge case: self-referencing placeholders stop expanding instead of looping
	if depth > 8 || !strings.Contains(text, "${") {
		return text
	}
	var b strings.Builder
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			b.WriteString(text)
			return b.String()
		}
		end += start
		b.WriteString(text[:start])
		if v, ok := e.get(text[start+2:end], depth); ok {
			b.WriteString(v)
		} else {
			b.WriteString(text[start : end+1])
		}
		text = text[end+1:]
	}
}

func prepareKey(name string) string {
	if strings.HasPrefix(name, "${") && strings.HasSuffix(name, "}") {
		return name[2 : len(name)-1]
	}
	return name
}

func (e *Environment) GetString(key, def string) string {
	if v, ok := e.Get(key); ok && v != "" {
		return v
	}
	return def
}

func (e *Environment) GetInt(key string, def int) (int, error) {
	v, ok := e.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, &ValidationError{Field: key, Message: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

func (e *Environment) GetBool(key string, def bool) (bool, error) {
	v, ok := e.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, &ValidationError{Field: key, Message: fmt.Sprintf("not a boolean: %q", v)}
	}
	return b, nil
}

// GetList collects key[0], key[1], ... until the first gap.
func (e *Environment) GetList(key string) []string {
	key = prepareKey(key)
	var out []string
	for i := 0; ; i++ {
		v, ok := e.Get(fmt.Sprintf("%s[%d]", key, i))
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.properties))
	for k := range e.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
