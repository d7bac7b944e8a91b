package appliance

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pihole-manager/pimgr/internal/errors"
)

// Blocklist profile names shipped in the profiles directory.
var ProfileNames = []string{"light", "moderate", "aggressive"}

// Profile is a curated set of adlists stored as <dir>/<name>.yaml.
type Profile struct {
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description"`
	EstimatedDomains string        `yaml:"estimated_domains"`
	Blocklists       []ProfileList `yaml:"blocklists"`
	Warnings         []string      `yaml:"warnings"`
}

// ProfileList is one adlist in a Profile.
type ProfileList struct {
	URL     string `yaml:"url"`
	Comment string `yaml:"comment"`
}

// LoadProfile reads profile name from dir.
func LoadProfile(fs afero.Fs, dir, name string) (*Profile, error) {
	if !slices.Contains(ProfileNames, name) {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown profile (want one of %v)", ProfileNames)).
			WithField("profile").WithValue(name)
	}
	path := filepath.Join(dir, name+".yaml")
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.NewNotFoundError("profile", name).WithCause(err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "parse profile %s", path)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// Adlists converts the profile's lists for ReplaceAdlists.
func (p *Profile) Adlists() []Adlist {
	out := make([]Adlist, 0, len(p.Blocklists))
	for _, b := range p.Blocklists {
		if b.URL == "" {
			continue
		}
		out = append(out, Adlist{Address: b.URL, Comment: b.Comment, Enabled: true})
	}
	return out
}
