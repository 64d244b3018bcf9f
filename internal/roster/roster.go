// Package roster holds the static character and glossary tables used to enrich translation prompts.
package roster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/persistorai/threadline/internal/models"
)

//go:embed default_roster.yaml
var defaultRoster []byte

// Alias is an alternate name a character goes by.
type Alias struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Character is a known speaker. Source is the exact speaker label used in the
// corpus; Short, when set, is the name other lines refer to the character by.
type Character struct {
	Source  string  `yaml:"source"`
	Short   string  `yaml:"short"`
	Target  string  `yaml:"target"`
	Gender  string  `yaml:"gender"`
	Aliases []Alias `yaml:"aliases"`
}

// Display renders the character for the prompt header.
func (c *Character) Display() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Name: %s (%s) | Gender: %s", c.Target, c.Source, c.Gender)

	if len(c.Aliases) > 0 {
		b.WriteString(" | Aliases: ")

		for i, a := range c.Aliases {
			if i > 0 {
				b.WriteString(", ")
			}

			fmt.Fprintf(&b, "%s (%s)", a.Target, a.Source)
		}
	}

	return b.String()
}

// mentionKey is the substring that marks the character as mentioned in a line.
func (c *Character) mentionKey() string {
	if c.Short != "" {
		return c.Short
	}

	return c.Source
}

// GlossaryEntry adds Entry to the prompt header whenever Trigger occurs in context.
type GlossaryEntry struct {
	Trigger string `yaml:"trigger"`
	Entry   string `yaml:"entry"`
}

// Placeholder is a literal token in the corpus replaced before prompting.
type Placeholder struct {
	Token string `yaml:"token"`
	Value string `yaml:"value"`
}

// VoiceSuffix turns "<character><Source>" labels into "<name><Target>".
type VoiceSuffix struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Roster is an immutable set of speaker and glossary tables.
type Roster struct {
	Placeholders []Placeholder     `yaml:"placeholders"`
	Anonymous    map[string]string `yaml:"anonymous"`
	Voice        VoiceSuffix       `yaml:"voice_suffix"`
	Characters   []Character       `yaml:"characters"`
	Glossary     []GlossaryEntry   `yaml:"glossary"`

	replacer *strings.Replacer
}

// Speaker is a decoded speaker label. Character is nil for passthrough labels
// such as anonymous speakers and voices.
type Speaker struct {
	Name      string
	Character *Character
}

// Default returns the roster compiled into the binary.
func Default() (*Roster, error) {
	return Parse(defaultRoster)
}

// Load reads a roster from a YAML file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration.
	if err != nil {
		return nil, fmt.Errorf("reading roster %s: %w", path, err)
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}

	return r, nil
}

// Parse decodes and validates a YAML roster.
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}

	if err := r.validate(); err != nil {
		return nil, err
	}

	pairs := make([]string, 0, 2*len(r.Placeholders))
	for _, p := range r.Placeholders {
		pairs = append(pairs, p.Token, p.Value)
	}

	r.replacer = strings.NewReplacer(pairs...)

	return &r, nil
}

func (r *Roster) validate() error {
	var errs []error

	seen := make(map[string]bool, len(r.Characters))

	for i, c := range r.Characters {
		if c.Source == "" || c.Target == "" {
			errs = append(errs, fmt.Errorf("character %d: source and target are required", i))
			continue
		}

		if seen[c.Source] {
			errs = append(errs, fmt.Errorf("character %q listed twice", c.Source))
		}

		seen[c.Source] = true
	}

	for i, g := range r.Glossary {
		if g.Trigger == "" || g.Entry == "" {
			errs = append(errs, fmt.Errorf("glossary entry %d: trigger and entry are required", i))
		}
	}

	for i, p := range r.Placeholders {
		if p.Token == "" {
			errs = append(errs, fmt.Errorf("placeholder %d: token is required", i))
		}
	}

	return errors.Join(errs...)
}

// Substitute replaces every placeholder token in s.
func (r *Roster) Substitute(s string) string {
	if r.replacer == nil {
		return s
	}

	return r.replacer.Replace(s)
}

// Decode maps a source speaker label to its target rendering.
func (r *Roster) Decode(label string) (Speaker, error) {
	if name, ok := r.Anonymous[label]; ok {
		return Speaker{Name: name}, nil
	}

	for i := range r.Characters {
		c := &r.Characters[i]
		if c.Source == label {
			return Speaker{Name: c.Target, Character: c}, nil
		}

		if r.Voice.Source != "" && label == c.Source+r.Voice.Source {
			return Speaker{Name: c.Target + r.Voice.Target}, nil
		}
	}

	return Speaker{}, fmt.Errorf("%w: %q", models.ErrUnknownSpeaker, label)
}

// Mentioned returns the characters whose short name or any alias occurs in line, in roster order.
func (r *Roster) Mentioned(line string) []*Character {
	var out []*Character

	for i := range r.Characters {
		c := &r.Characters[i]
		if strings.Contains(line, c.mentionKey()) {
			out = append(out, c)
			continue
		}

		for _, a := range c.Aliases {
			if a.Source != "" && strings.Contains(line, a.Source) {
				out = append(out, c)
				break
			}
		}
	}

	return out
}

// Entries returns the distinct glossary entries whose trigger occurs in any of lines, in roster order.
func (r *Roster) Entries(lines ...string) []string {
	var out []string

	seen := make(map[string]bool)

	for _, g := range r.Glossary {
		if seen[g.Entry] {
			continue
		}

		for _, l := range lines {
			if strings.Contains(l, g.Trigger) {
				seen[g.Entry] = true
				out = append(out, g.Entry)

				break
			}
		}
	}

	return out
}

// Unknown returns the labels that Decode rejects, preserving input order.
func (r *Roster) Unknown(labels []string) []string {
	var out []string

	for _, l := range labels {
		if _, err := r.Decode(l); err != nil {
			out = append(out, l)
		}
	}

	return out
}
