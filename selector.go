package convogen

import (
	"math/rand"
	"sort"
)

// ──────────────────────────────────────────────
// Selector — weighted random choice over the seed catalogs
// ──────────────────────────────────────────────
//
// All selection goes through an injectable *rand.Rand so runs can be made
// reproducible by seeding the source. Keys are walked in sorted order;
// map iteration order must never influence a draw.

// WeightedChoice draws one key with probability proportional to its
// weight. Keys with weight <= 0 are never selected. An empty catalog is
// a ConfigurationError.
func WeightedChoice(rng *rand.Rand, options map[string]float64) (string, error) {
	if len(options) == 0 {
		return "", configErrorf("weighted choice over empty catalog")
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0.0
	for _, k := range keys {
		if options[k] > 0 {
			total += options[k]
		}
	}
	if total <= 0 {
		return "", configErrorf("weighted choice: all %d weights are zero or negative", len(options))
	}

	target := rng.Float64() * total
	acc := 0.0
	for _, k := range keys {
		w := options[k]
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return k, nil
		}
	}
	// Floating-point accumulation can land exactly on total.
	for i := len(keys) - 1; i >= 0; i-- {
		if options[keys[i]] > 0 {
			return keys[i], nil
		}
	}
	return "", configErrorf("weighted choice: no selectable option")
}

// uniformChoice draws one element uniformly.
func uniformChoice(rng *rand.Rand, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", configErrorf("uniform choice over empty catalog")
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return sorted[rng.Intn(len(sorted))], nil
}

// SelectPersona draws a chatbot persona using the per-persona weights
// (default 1.0 where absent in the catalog).
func (s *SeedStore) SelectPersona(rng *rand.Rand) (Persona, error) {
	if len(s.Personas) == 0 {
		return Persona{}, configErrorf("persona catalog is empty")
	}
	weights := make(map[string]float64, len(s.Personas))
	byName := make(map[string]Persona, len(s.Personas))
	for _, p := range s.Personas {
		w := p.Weight
		if w == 0 {
			w = 1.0
		}
		weights[p.Type] = w
		byName[p.Type] = p
	}
	name, err := WeightedChoice(rng, weights)
	if err != nil {
		return Persona{}, err
	}
	return byName[name], nil
}

// SelectStyleProfile draws one variation per style dimension,
// independently weighted. The message-length dimension carries its
// min/max word bounds into the profile.
func (s *SeedStore) SelectStyleProfile(rng *rand.Rand) (StyleProfile, error) {
	if len(s.Styles) == 0 {
		return nil, configErrorf("style catalog is empty")
	}

	profile := StyleProfile{}
	dimensions := make([]string, 0, len(s.Styles))
	for d := range s.Styles {
		dimensions = append(dimensions, d)
	}
	sort.Strings(dimensions)

	for _, dim := range dimensions {
		variations := s.Styles[dim].Variations
		weights := make(map[string]float64, len(variations))
		for name, v := range variations {
			w := v.Weight
			if w == 0 {
				w = 1.0
			}
			weights[name] = w
		}
		chosen, err := WeightedChoice(rng, weights)
		if err != nil {
			return nil, configErrorf("style dimension %q: %v", dim, err)
		}

		choice := StyleChoice{
			Type:        chosen,
			Description: variations[chosen].Description,
		}
		if dim == DimensionMessageLength {
			choice.MinWords = variations[chosen].MinWords
			choice.MaxWords = variations[chosen].MaxWords
		}
		profile[dim] = choice
	}
	return profile, nil
}

// SelectScenario draws a role-based scenario: uniform category, then
// uniform scenario within the category.
func (s *SeedStore) SelectScenario(rng *rand.Rand) (Scenario, error) {
	if len(s.Scenarios) == 0 {
		return Scenario{}, configErrorf("scenario catalog is empty")
	}
	categories := make([]string, 0, len(s.Scenarios))
	for c := range s.Scenarios {
		categories = append(categories, c)
	}
	category, err := uniformChoice(rng, categories)
	if err != nil {
		return Scenario{}, err
	}

	list := s.Scenarios[category]
	if len(list) == 0 {
		return Scenario{}, configErrorf("category %q has no scenarios", category)
	}
	// Draw by sorted name for determinism under a seeded source.
	sorted := append([]Scenario(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted[rng.Intn(len(sorted))], nil
}

// SelectScenarioWithExpectation draws from the topic catalog: weighted
// category, weighted topic within the category, then a uniform draw of
// one expectation attached to the topic. No weighting is applied at the
// expectation level. The result is a synthesized topic-only Scenario.
func (s *SeedStore) SelectScenarioWithExpectation(rng *rand.Rand) (Scenario, error) {
	if len(s.Topics) == 0 {
		return Scenario{}, configErrorf("topic catalog is empty")
	}

	catWeights := make(map[string]float64, len(s.Topics))
	for c, topics := range s.Topics {
		total := 0.0
		for _, entry := range topics {
			total += entry.Weight
		}
		catWeights[c] = total
	}
	category, err := WeightedChoice(rng, catWeights)
	if err != nil {
		return Scenario{}, err
	}

	topicWeights := make(map[string]float64, len(s.Topics[category]))
	for t, entry := range s.Topics[category] {
		topicWeights[t] = entry.Weight
	}
	topic, err := WeightedChoice(rng, topicWeights)
	if err != nil {
		return Scenario{}, err
	}

	sc := Scenario{
		Category: category,
		Name:     topic,
		Topic:    topic,
	}
	if exps := s.Topics[category][topic].Expectations; len(exps) > 0 {
		e := exps[rng.Intn(len(exps))]
		sc.Expectation = &e
	}
	return sc, nil
}
