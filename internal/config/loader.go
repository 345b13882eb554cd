package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "runcap.yaml"

// EnvConfigPath names the environment variable that points at the config.
const EnvConfigPath = "RUNCAP_CONFIG"

// Resolve picks the config path: the explicit flag value, then
// RUNCAP_CONFIG, then runcap.yaml in the working directory. A missing file is
// only an error when the path was named explicitly.
func Resolve(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		if env, ok := os.LookupEnv(EnvConfigPath); ok && env != "" {
			path, explicit = env, true
		} else {
			path = DefaultFileName
		}
	}
	doc, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return doc, nil
}

// Load reads, schema-checks, resolves and validates a config file.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw != nil {
		if err := validateAgainstSchema(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc File
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	doc.Path = absPath

	if err := doc.resolve(filepath.Dir(absPath)); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

// resolve expands environment references and makes preset paths absolute
// relative to the config directory. envFromFile values are merged under the
// inline env so inline keys win.
func (f *File) resolve(baseDir string) error {
	f.Docker.Image = os.ExpandEnv(f.Docker.Image)
	for i, m := range f.Docker.Mounts {
		f.Docker.Mounts[i] = os.ExpandEnv(m)
	}

	for name, cmd := range f.Commands {
		if cmd == nil {
			continue
		}
		cmd.Workdir = resolveDir(baseDir, os.ExpandEnv(cmd.Workdir))

		var merged map[string]string
		if cmd.EnvFromFile != "" {
			expanded := os.ExpandEnv(cmd.EnvFromFile)
			if !filepath.IsAbs(expanded) {
				expanded = filepath.Clean(filepath.Join(baseDir, expanded))
			}
			cmd.EnvFromFile = expanded

			fileEnv, err := LoadEnvFile(expanded)
			if err != nil {
				return fmt.Errorf("%s: %w", commandField(name, "envFromFile"), err)
			}
			merged = fileEnv
		}
		if len(cmd.Env) > 0 {
			if merged == nil {
				merged = make(map[string]string, len(cmd.Env))
			}
			for k, v := range cmd.Env {
				merged[k] = os.ExpandEnv(v)
			}
		}
		cmd.Env = merged
	}
	return nil
}

func resolveDir(base, dir string) string {
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(base, dir))
}

// LoadEnvFile parses a dotenv style file: KEY=VALUE lines, optional export
// prefix, # comments, single or double quoted values and ${VAR} expansion.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "export "))
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		value, err = parseEnvValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %s on line %d: %w", path, key, lineNo, err)
		}
		values[key] = os.Expand(value, func(name string) string {
			if v, ok := values[name]; ok {
				return v
			}
			return os.Getenv(name)
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

func parseEnvValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, `"`):
		if len(value) < 2 || !strings.HasSuffix(value, `"`) {
			return "", errors.New("unmatched quote")
		}
		return strconv.Unquote(value)
	case strings.HasPrefix(value, "'"):
		if len(value) < 2 || !strings.HasSuffix(value, "'") {
			return "", errors.New("unmatched quote")
		}
		return value[1 : len(value)-1], nil
	default:
		if comment := strings.Index(value, " #"); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		return value, nil
	}
}

// MergeEnv returns base overlaid with every later map.
func MergeEnv(base map[string]string, overlays ...map[string]string) map[string]string {
	out := maps.Clone(base)
	for _, overlay := range overlays {
		if len(overlay) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(overlay))
		}
		maps.Copy(out, overlay)
	}
	return out
}
