package profile

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Candidate holds the facts about the applicant used for matching, content
// generation and form filling. It is loaded once per run and read-only
// afterwards.
type Candidate struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Phone    string `mapstructure:"phone"`
	Location string `mapstructure:"location"`

	// CVRef is the reference (usually a path) handed to file form fields.
	CVRef string `mapstructure:"cv-ref"`

	Skills     []string `mapstructure:"skills"`
	Experience []string `mapstructure:"experience"`
	Keywords   []string `mapstructure:"keywords"`

	// Answers maps recurring application questions to stored answers. Keys
	// are normalized on load so lookups are insensitive to casing and
	// whitespace in the question text.
	Answers map[string]string `mapstructure:"answers"`
}

// Load reads the candidate profile from a YAML file.
func Load(path string) (*Candidate, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	var candidate Candidate
	if err := v.Unmarshal(&candidate); err != nil {
		return nil, fmt.Errorf("parsing profile file: %w", err)
	}

	if len(candidate.Keywords) == 0 {
		return nil, fmt.Errorf("profile must define at least one search keyword")
	}

	normalized := make(map[string]string, len(candidate.Answers))
	for question, answer := range candidate.Answers {
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		normalized[Normalize(question)] = answer
	}
	candidate.Answers = normalized

	return &candidate, nil
}

// Normalize canonicalizes question text: case-folded with runs of
// whitespace collapsed to single spaces.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// StoredAnswer returns the pre-configured answer for the question, if any.
func (c *Candidate) StoredAnswer(question string) (string, bool) {
	answer, ok := c.Answers[Normalize(question)]
	return answer, ok
}

// Summary renders the profile as a compact text block for prompts.
func (c *Candidate) Summary() string {
	var b strings.Builder

	if c.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", c.Name)
	}
	if c.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", c.Location)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(c.Skills, ", "))
	}
	for _, exp := range c.Experience {
		fmt.Fprintf(&b, "Experience: %s\n", exp)
	}

	return strings.TrimSpace(b.String())
}
