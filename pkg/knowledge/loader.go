package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorldDefinition is the YAML shape of a canonical world file.
type WorldDefinition struct {
	Locations      []Location      `yaml:"locations"`
	Establishments []Establishment `yaml:"establishments"`
	Agents         []Agent         `yaml:"agents"`
}

// LoadWorldFile loads a canonical world definition from a YAML file and
// validates it. Validation happens at load time, not at use time: every
// establishment must reference a known location, every agent a known home.
func LoadWorldFile(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	return LoadWorld(data)
}

// LoadWorld parses and validates a canonical world definition.
func LoadWorld(data []byte) (*Base, error) {
	var def WorldDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}

	base := NewBase()
	for _, loc := range def.Locations {
		if loc.ID == "" || loc.Name == "" {
			return nil, fmt.Errorf("load world: location requires id and name, got %+v", loc)
		}
		base.AddLocation(loc)
	}
	for _, loc := range def.Locations {
		if loc.Parent != "" {
			if _, ok := base.Location(loc.Parent); !ok {
				return nil, fmt.Errorf("load world: location %q references unknown parent %q", loc.ID, loc.Parent)
			}
		}
	}
	for _, est := range def.Establishments {
		if est.Name == "" {
			return nil, fmt.Errorf("load world: establishment requires a name")
		}
		if _, ok := base.Location(est.LocationID); !ok {
			return nil, fmt.Errorf("load world: establishment %q references unknown location %q", est.Name, est.LocationID)
		}
		base.AddEstablishment(est)
	}
	for _, agent := range def.Agents {
		if agent.ID == "" {
			return nil, fmt.Errorf("load world: agent requires an id")
		}
		if _, ok := base.Location(agent.HomeLocation); !ok {
			return nil, fmt.Errorf("load world: agent %q references unknown home %q", agent.ID, agent.HomeLocation)
		}
		if agent.Workplace != "" {
			if _, ok := base.Location(agent.Workplace); !ok {
				return nil, fmt.Errorf("load world: agent %q references unknown workplace %q", agent.ID, agent.Workplace)
			}
		}
		base.AddAgent(agent)
	}

	return base, nil
}
