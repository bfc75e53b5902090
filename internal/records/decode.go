package records

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Document is a loosely typed record as stored in the document store.
type Document = map[string]any

var locationType = reflect.TypeOf(Location{})

// Decode converts a document into the provided record. Numbers stored as
// strings (and the other way around) are accepted, and a location may be a
// plain string or a {lat, lng} map.
func Decode(doc Document, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       locationHook,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

func locationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != locationType {
		return data, nil
	}

	switch v := data.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		return map[string]any{"address": v}, nil
	case map[string]any:
		_, hasLat := v["lat"]
		_, hasLng := v["lng"]
		if hasLat && hasLng {
			return map[string]any{"coordinates": v}, nil
		}
		// A lone lat or lng is not a point.
		rest := make(map[string]any, len(v))
		for key, val := range v {
			if key != "lat" && key != "lng" {
				rest[key] = val
			}
		}
		return rest, nil
	default:
		return data, nil
	}
}

// DecodeCandidate decodes a single document into a Candidate. When the
// document has no id field, fallbackID is used instead.
func DecodeCandidate(doc Document, fallbackID string) (*Candidate, error) {
	var c Candidate
	if err := Decode(doc, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = fallbackID
	}
	return &c, nil
}

func DecodeJob(doc Document, fallbackID string) (*Job, error) {
	var j Job
	if err := Decode(doc, &j); err != nil {
		return nil, err
	}
	if j.ID == "" {
		j.ID = fallbackID
	}
	return &j, nil
}

// LoadCandidates reads candidates from a JSON file. The file may hold either
// an array of documents or an object keyed by document id. Documents that
// cannot be decoded or fail validation are skipped and reported in rejected.
func LoadCandidates(path string) (candidates *Candidates, rejected []error, err error) {
	docs, err := readDocuments(path)
	if err != nil {
		return nil, nil, err
	}

	candidates = &Candidates{Items: make([]*Candidate, 0, len(docs))}
	for _, d := range docs {
		c, err := DecodeCandidate(d.doc, d.id)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("candidate %q: %w", d.id, err))
			continue
		}
		if err := c.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		candidates.Items = append(candidates.Items, c)
	}

	return candidates, rejected, nil
}

// LoadJob reads a single job document from a JSON file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing job file %q: %w", path, err)
	}

	job, err := DecodeJob(doc, "")
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

type keyedDocument struct {
	id  string
	doc Document
}

func readDocuments(path string) ([]keyedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	var list []Document
	if err := json.Unmarshal(data, &list); err == nil {
		docs := make([]keyedDocument, 0, len(list))
		for idx, doc := range list {
			docs = append(docs, keyedDocument{id: fmt.Sprintf("#%d", idx), doc: doc})
		}
		return docs, nil
	}

	var keyed map[string]Document
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("parsing documents file %q: expected an array or an object of documents: %w", path, err)
	}

	ids := make([]string, 0, len(keyed))
	for id := range keyed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]keyedDocument, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, keyedDocument{id: id, doc: keyed[id]})
	}
	return docs, nil
}
