package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/cryptoutil"
)

// StoredDoc is one document parsed from the fs tree.
type StoredDoc struct {
	ID   string
	Type cms.ContentType
	Slug string
	Path string
	Raw  json.RawMessage
	// Sum is the SHA-256 of Raw, used to detect modifications between snapshots.
	Sum string
}

// Snapshot is an immutable set of documents grouped by type.
type Snapshot struct {
	Docs     map[cms.ContentType][]StoredDoc
	LoadedAt time.Time
}

// Len returns the number of documents in the snapshot.
func (s *Snapshot) Len() int {
	n := 0
	for _, d := range s.Docs {
		n += len(d)
	}
	return n
}

func (s *Snapshot) raws(t cms.ContentType) []json.RawMessage {
	docs := s.Docs[t]
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Raw)
	}
	return out
}

// LoadSnapshot parses every document under fsys. The tree layout is
// {type}/{name}.json|.yaml|.yml|.md; a .json or .yaml file may hold one
// document or an array of documents. Markdown files carry their fields as
// front matter and the remainder becomes the "body" field.
//
// Missing _type and _id fields are filled from the directory and file name.
// Unknown type directories and files that do not parse are errors: a
// half-loaded tree is never published.
func LoadSnapshot(fsys fs.FS) (*Snapshot, error) {
	snap := &Snapshot{Docs: make(map[cms.ContentType][]StoredDoc), LoadedAt: time.Now().UTC()}
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != "." {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != "." && strings.Count(p, "/") == 0 {
				if _, err := cms.ParseContentType(d.Name()); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
			}
			return nil
		}
		dir := path.Dir(p)
		if dir == "." || strings.Contains(dir, "/") {
			return fmt.Errorf("%s: documents must live directly under a type directory", p)
		}
		ct := cms.ContentType(dir)

		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		objs, err := parseFile(p, b)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		base := strings.TrimSuffix(path.Base(p), path.Ext(p))
		for i, obj := range objs {
			doc, err := storedDoc(ct, p, base, i, len(objs), obj)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if prev, dup := seen[doc.ID]; dup {
				return fmt.Errorf("%s: duplicate document id %q (also in %s)", p, doc.ID, prev)
			}
			seen[doc.ID] = p
			snap.Docs[ct] = append(snap.Docs[ct], doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for ct := range snap.Docs {
		slices.SortFunc(snap.Docs[ct], func(a, b StoredDoc) int { return strings.Compare(a.ID, b.ID) })
	}
	return snap, nil
}

func parseFile(p string, b []byte) ([]map[string]any, error) {
	var v any
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &v); err != nil {
			return nil, err
		}
	case ".md":
		fields := map[string]any{}
		body, err := frontmatter.Parse(bytes.NewReader(b), &fields)
		if err != nil {
			return nil, err
		}
		fields["body"] = strings.TrimSpace(string(body))
		v = fields
	default:
		return nil, fmt.Errorf("unsupported document extension %q", path.Ext(p))
	}

	v, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("document must be an object or array, got %T", v)
	}
}

// normalizeValue converts decoder output into JSON-encodable values. YAML
// decoders may produce map[any]any for nested mappings.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			m[ks] = n
		}
		return m, nil
	case []any:
		for i, e := range t {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

func storedDoc(ct cms.ContentType, p, base string, i, n int, obj map[string]any) (StoredDoc, error) {
	if t, ok := obj["_type"]; ok {
		if s, _ := t.(string); s != string(ct) {
			return StoredDoc{}, fmt.Errorf("_type %v does not match directory %s", t, ct)
		}
	} else {
		obj["_type"] = string(ct)
	}
	id, _ := obj["_id"].(string)
	if id == "" {
		id = string(ct) + "." + base
		if n > 1 {
			id = fmt.Sprintf("%s.%d", id, i)
		}
		obj["_id"] = id
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return StoredDoc{}, err
	}
	doc := StoredDoc{ID: id, Type: ct, Path: p, Raw: raw, Sum: cryptoutil.SHA256Hex(raw)}
	if s, ok := obj["slug"].(map[string]any); ok {
		doc.Slug, _ = s["current"].(string)
	}
	return doc, nil
}
