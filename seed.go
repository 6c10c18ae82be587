package convogen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ──────────────────────────────────────────────
// Seed Data Store — one-time load of the JSON catalogs
// ──────────────────────────────────────────────
//
// The catalogs accumulated several on-disk shapes over time (bare strings,
// trait lists, nested objects). Everything is normalized here, at the
// boundary; downstream code only ever sees the canonical structs.

// Catalog file names expected under the seed directory.
const (
	scenariosFile = "scenarios.json"
	personasFile  = "chatbot_personas.json"
	stylesFile    = "conversation_styles.json"
	topicsFile    = "seed_topics.json"
)

// StyleVariation is one selectable variation of a style dimension.
type StyleVariation struct {
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	MinWords    int     `json:"min_words,omitempty"`
	MaxWords    int     `json:"max_words,omitempty"`
}

// StyleDimension holds the variations of one style dimension.
type StyleDimension struct {
	Variations map[string]StyleVariation `json:"variations"`
}

// StyleCatalog maps dimension name to its variations.
type StyleCatalog map[string]StyleDimension

// TopicEntry holds the expectations attached to one topic, plus an
// optional selection weight (default 1.0).
type TopicEntry struct {
	Weight       float64       `json:"weight"`
	Expectations []Expectation `json:"expectations"`
}

// TopicCatalog maps category → topic → entry.
type TopicCatalog map[string]map[string]TopicEntry

// SeedStore holds all catalogs, loaded once per generator construction
// and treated as immutable afterwards.
type SeedStore struct {
	Scenarios map[string][]Scenario
	Personas  []Persona
	Styles    StyleCatalog
	Topics    TopicCatalog
}

// LoadSeedStore reads the four catalogs from dir. A missing file yields
// an empty catalog (selection against an empty catalog fails later with
// a ConfigurationError); a malformed file is an error here.
func LoadSeedStore(dir string) (*SeedStore, error) {
	s := &SeedStore{
		Scenarios: map[string][]Scenario{},
		Styles:    StyleCatalog{},
		Topics:    TopicCatalog{},
	}

	if raw, ok, err := readSeedFile(dir, scenariosFile); err != nil {
		return nil, err
	} else if ok {
		if err := s.loadScenarios(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", scenariosFile, err)
		}
	}
	if raw, ok, err := readSeedFile(dir, personasFile); err != nil {
		return nil, err
	} else if ok {
		if err := s.loadPersonas(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", personasFile, err)
		}
	}
	if raw, ok, err := readSeedFile(dir, stylesFile); err != nil {
		return nil, err
	} else if ok {
		if err := json.Unmarshal(raw, &s.Styles); err != nil {
			return nil, fmt.Errorf("%s: %w", stylesFile, err)
		}
	}
	if raw, ok, err := readSeedFile(dir, topicsFile); err != nil {
		return nil, err
	} else if ok {
		if err := s.loadTopics(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", topicsFile, err)
		}
	}

	return s, nil
}

func readSeedFile(dir, name string) ([]byte, bool, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, true, nil
}

// loadScenarios accepts three legacy shapes per category:
//
//	{"name": {"role_description": ..., "emotional_traits": ..., ...}}
//	{"name": "bare role description"}
//	["bare role description", ...]
func (s *SeedStore) loadScenarios(raw []byte) error {
	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return err
	}

	for category, body := range byCategory {
		var list []Scenario

		// Shape 3: a bare list of role descriptions.
		var descs []string
		if err := json.Unmarshal(body, &descs); err == nil {
			for i, d := range descs {
				list = append(list, Scenario{
					Category:        category,
					Name:            fmt.Sprintf("%s #%d", category, i+1),
					Topic:           category,
					RoleDescription: d,
				})
			}
			s.Scenarios[category] = list
			continue
		}

		var named map[string]json.RawMessage
		if err := json.Unmarshal(body, &named); err != nil {
			return fmt.Errorf("category %q: unrecognized shape: %w", category, err)
		}
		for name, val := range named {
			sc := Scenario{Category: category, Name: name, Topic: name}

			// Shape 2: value is a bare string.
			var desc string
			if err := json.Unmarshal(val, &desc); err == nil {
				sc.RoleDescription = desc
				list = append(list, sc)
				continue
			}

			// Shape 1: full object.
			var obj struct {
				RoleDescription string       `json:"role_description"`
				EmotionalTraits string       `json:"emotional_traits"`
				UserGoal        string       `json:"user_goal"`
				Topic           string       `json:"topic"`
				Expectation     *Expectation `json:"expectation"`
			}
			if err := json.Unmarshal(val, &obj); err != nil {
				return fmt.Errorf("category %q scenario %q: %w", category, name, err)
			}
			sc.RoleDescription = obj.RoleDescription
			sc.EmotionalTraits = obj.EmotionalTraits
			sc.UserGoal = obj.UserGoal
			sc.Expectation = obj.Expectation
			if obj.Topic != "" {
				sc.Topic = obj.Topic
			}
			list = append(list, sc)
		}
		s.Scenarios[category] = list
	}
	return nil
}

// loadPersonas accepts both the weighted object form and the legacy bare
// trait-list form:
//
//	{"Pragmatist": {"weight": 1.5, "traits": ["Direct", ...]}}
//	{"Pragmatist": ["Direct", ...]}
func (s *SeedStore) loadPersonas(raw []byte) error {
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil {
		return err
	}

	for name, val := range byName {
		p := Persona{Type: name, Weight: 1.0}

		var traits []string
		if err := json.Unmarshal(val, &traits); err == nil {
			p.Traits = traits
			s.Personas = append(s.Personas, p)
			continue
		}

		var obj struct {
			Weight *float64 `json:"weight"`
			Traits []string `json:"traits"`
		}
		if err := json.Unmarshal(val, &obj); err != nil {
			return fmt.Errorf("persona %q: %w", name, err)
		}
		if obj.Weight != nil {
			p.Weight = *obj.Weight
		}
		p.Traits = obj.Traits
		s.Personas = append(s.Personas, p)
	}
	return nil
}

// loadTopics accepts per-topic values as either a plain expectation array
// or an object carrying a weight:
//
//	{"Career Advice": {"Choosing between two job offers": [{...}, ...]}}
//	{"Career Advice": {"Choosing between two job offers": {"weight": 2, "expectations": [...]}}}
//	{"Career Advice": ["Choosing between two job offers", ...]}   (no expectations)
func (s *SeedStore) loadTopics(raw []byte) error {
	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return err
	}

	for category, body := range byCategory {
		entries := map[string]TopicEntry{}

		// Legacy: a bare list of topic strings.
		var names []string
		if err := json.Unmarshal(body, &names); err == nil {
			for _, n := range names {
				entries[n] = TopicEntry{Weight: 1.0}
			}
			s.Topics[category] = entries
			continue
		}

		var byTopic map[string]json.RawMessage
		if err := json.Unmarshal(body, &byTopic); err != nil {
			return fmt.Errorf("category %q: unrecognized shape: %w", category, err)
		}
		for topic, val := range byTopic {
			var exps []Expectation
			if err := json.Unmarshal(val, &exps); err == nil {
				entries[topic] = TopicEntry{Weight: 1.0, Expectations: exps}
				continue
			}
			var entry TopicEntry
			if err := json.Unmarshal(val, &entry); err != nil {
				return fmt.Errorf("category %q topic %q: %w", category, topic, err)
			}
			if entry.Weight == 0 {
				entry.Weight = 1.0
			}
			entries[topic] = entry
		}
		s.Topics[category] = entries
	}
	return nil
}
