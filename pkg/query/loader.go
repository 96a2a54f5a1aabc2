package query

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed queries/*.yaml
var defaultQueries embed.FS

// queryFile is the YAML layout of a query definition file.
type queryFile struct {
	Metadata struct {
		Version      int      `yaml:"version"`
		Description  string   `yaml:"description"`
		DataFamilies []string `yaml:"data_families"`
	} `yaml:"metadata"`
	Defaults struct {
		Params map[string]ParamDecl `yaml:"params"`
	} `yaml:"defaults"`
	Sources map[string]*Source `yaml:"sources"`
}

// Store holds loaded query sources grouped by data family.
type Store struct {
	families map[string]map[string]*Source
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{families: make(map[string]map[string]*Source)}
}

// Families returns the family → query-name → source mapping.
func (s *Store) Families() map[string]map[string]*Source {
	return s.families
}

// Get returns the source for a fully-qualified "family.name" key.
func (s *Store) Get(key string) (*Source, error) {
	family, name, ok := strings.Cut(key, ".")
	if !ok {
		return nil, fmt.Errorf("%w: key %q is not family-qualified", ErrQueryNotFound, key)
	}
	fam, ok := s.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %q", ErrQueryNotFound, family)
	}
	src, ok := fam[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueryNotFound, key)
	}
	return src, nil
}

// Add inserts a source, replacing any previous definition with the same
// family and name.
func (s *Store) Add(src *Source) {
	fam, ok := s.families[src.Family]
	if !ok {
		fam = make(map[string]*Source)
		s.families[src.Family] = fam
	}
	fam[src.Name] = src
}

// LoadDefault loads the query definitions embedded in the binary.
func LoadDefault() (*Store, error) {
	store := NewStore()
	err := fs.WalkDir(defaultQueries, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return err
		}
		data, err := defaultQueries.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded query file %s: %w", path, err)
		}
		if err := parseQueryFile(store, data); err != nil {
			return fmt.Errorf("embedded query file %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// LoadPaths loads query definition files from the given search paths,
// merged over the embedded defaults. Later paths override earlier ones.
func LoadPaths(paths ...string) (*Store, error) {
	store, err := LoadDefault()
	if err != nil {
		return nil, err
	}
	for _, root := range paths {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read query path %s: %w", root, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			full := filepath.Join(root, entry.Name())
			data, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("failed to read query file %s: %w", full, err)
			}
			if err := parseQueryFile(store, data); err != nil {
				return nil, fmt.Errorf("query file %s: %w", full, err)
			}
		}
	}
	return store, nil
}

// ParseQueryDefs parses one YAML query definition document into store.
func ParseQueryDefs(store *Store, data []byte) error {
	return parseQueryFile(store, data)
}

func parseQueryFile(store *Store, data []byte) error {
	var qf queryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if len(qf.Metadata.DataFamilies) == 0 {
		return fmt.Errorf("query file declares no data_families")
	}
	for name, src := range qf.Sources {
		if src == nil {
			continue
		}
		if strings.TrimSpace(src.Query) == "" {
			return fmt.Errorf("query %q has an empty query template", name)
		}
		for _, family := range qf.Metadata.DataFamilies {
			copySrc := *src
			copySrc.Name = name
			copySrc.Family = family
			copySrc.Params = mergeParams(qf.Defaults.Params, src.Params)
			store.Add(&copySrc)
		}
	}
	return nil
}

// mergeParams applies file-level default params under the per-source
// declarations.
func mergeParams(defaults, declared map[string]ParamDecl) map[string]ParamDecl {
	out := make(map[string]ParamDecl, len(defaults)+len(declared))
	for name, decl := range defaults {
		out[name] = decl
	}
	for name, decl := range declared {
		out[name] = decl
	}
	return out
}
