package quest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML shape of a quest definition file.
type Definition struct {
	Quests []*Quest `yaml:"quests"`
}

// LoadFile loads and validates quest definitions from a YAML file.
func LoadFile(path string) ([]*Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load quests: %w", err)
	}
	return Load(data)
}

// Load parses and validates quest definitions. Validation happens at load
// time: ids must be unique and non-empty, every objective must declare at
// least one completion condition, and unlocks must reference loaded
// quests.
func Load(data []byte) ([]*Quest, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("load quests: %w", err)
	}

	seen := make(map[string]bool, len(def.Quests))
	for _, q := range def.Quests {
		if q.ID == "" {
			return nil, fmt.Errorf("load quests: quest requires an id, got title %q", q.Title)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("load quests: duplicate quest id %q", q.ID)
		}
		seen[q.ID] = true

		objSeen := make(map[string]bool, len(q.Objectives))
		for _, o := range q.Objectives {
			if o.ID == "" {
				return nil, fmt.Errorf("load quests: quest %q has an objective without an id", q.ID)
			}
			if objSeen[o.ID] {
				return nil, fmt.Errorf("load quests: quest %q has duplicate objective id %q", q.ID, o.ID)
			}
			objSeen[o.ID] = true
			if !o.hasCondition() {
				return nil, fmt.Errorf("load quests: objective %s/%s declares no completion condition", q.ID, o.ID)
			}
		}
	}
	for _, q := range def.Quests {
		for _, dep := range q.Unlocks {
			if !seen[dep] {
				return nil, fmt.Errorf("load quests: quest %q unlocks unknown quest %q", q.ID, dep)
			}
		}
	}

	return def.Quests, nil
}
