package content

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
)

const draftPrefix = "drafts."

type exportDoc struct {
	id     string
	slug   string
	fields map[string]any
	raw    json.RawMessage
}

// selectDocs applies q's shape to the documents of one type taken from an
// export (S3 object or fs snapshot). Drafts are dropped. Singletons resolve
// to the lowest _id so the result does not depend on export order.
func selectDocs(q Query, raws []json.RawMessage, params Params) (json.RawMessage, error) {
	docs := make([]exportDoc, 0, len(raws))
	for _, raw := range raws {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, &FetchError{Query: q.ID, Kind: KindDecode, Err: err}
		}
		id, _ := fields["_id"].(string)
		if strings.HasPrefix(id, draftPrefix) {
			continue
		}
		if t, _ := fields["_type"].(string); t != string(q.Type) {
			continue
		}
		d := exportDoc{id: id, fields: fields, raw: raw}
		if s, ok := fields["slug"].(map[string]any); ok {
			d.slug, _ = s["current"].(string)
		}
		docs = append(docs, d)
	}
	slices.SortStableFunc(docs, func(a, b exportDoc) int { return strings.Compare(a.id, b.id) })

	switch q.Shape {
	case BySlug:
		slug := params[ParamSlug]
		for _, d := range docs {
			if d.slug == slug {
				return d.raw, nil
			}
		}
		return nil, nil
	case List:
		if field, desc := q.orderField(); field != "" {
			slices.SortStableFunc(docs, func(a, b exportDoc) int {
				c := compareField(a.fields[field], b.fields[field])
				if desc {
					return -c
				}
				return c
			})
		}
		out := make([]json.RawMessage, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.raw)
		}
		return json.Marshal(out)
	default:
		if len(docs) == 0 {
			return nil, nil
		}
		return docs[0].raw, nil
	}
}

// compareField orders numbers before strings and missing values last.
func compareField(a, b any) int {
	rank := func(v any) int {
		switch v.(type) {
		case float64:
			return 0
		case string:
			return 1
		default:
			return 2
		}
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}
