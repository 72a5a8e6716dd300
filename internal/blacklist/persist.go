package blacklist

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Lists is the durable form of the blacklist: two address lists, always read
// and rewritten as a whole.
type Lists struct {
	Coins []string `yaml:"coins"`
	Devs  []string `yaml:"devs"`
}

// Persister is the blacklist configuration collaborator. It has no partial
// update API; every Save rewrites both lists.
type Persister interface {
	Load() (Lists, error)
	Save(lists Lists) error
}

// FilePersister keeps the lists under the `blacklist` key of the service's
// YAML config file. Other sections, comments and ${ENV} placeholders in the
// file are preserved on rewrite.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister for the given config file.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the blacklist section. A missing file or section yields empty lists.
func (p *FilePersister) Load() (Lists, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Lists{}, nil
		}
		return Lists{}, fmt.Errorf("read blacklist config: %w", err)
	}

	var doc struct {
		Blacklist Lists `yaml:"blacklist"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Lists{}, fmt.Errorf("parse blacklist config: %w", err)
	}
	return doc.Blacklist, nil
}

// Save rewrites the blacklist section and replaces the file atomically.
func (p *FilePersister) Save(lists Lists) error {
	var doc yaml.Node
	data, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse blacklist config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read blacklist config: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("blacklist config: top level is not a mapping")
	}

	section := mappingChild(root, "blacklist")
	setSequence(section, "coins", lists.Coins)
	setSequence(section, "devs", lists.Devs)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode blacklist config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode blacklist config: %w", err)
	}

	return writeFileAtomic(p.path, buf.Bytes())
}

// mappingChild returns the mapping stored under key, creating or replacing it
// when absent or not a mapping (e.g. `blacklist:` with a null value).
func mappingChild(parent *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == key {
			val := parent.Content[i+1]
			if val.Kind != yaml.MappingNode {
				*val = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			return val
		}
	}
	val := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
	return val
}

func setSequence(parent *yaml.Node, key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == key {
			seq.HeadComment = parent.Content[i+1].HeadComment
			seq.LineComment = parent.Content[i+1].LineComment
			parent.Content[i+1] = seq
			return
		}
	}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, seq)
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blacklist-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
