package extract

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// WeightEntry is the score awarded when a keyword family is found in the
// header row (Header) or only in the leading body rows (Body).
type WeightEntry struct {
	Header int `yaml:"header"`
	Body   int `yaml:"body"`
}

// Vocabulary holds the keyword lists and weights every extraction stage
// consults. Build one with DefaultVocabulary or LoadVocabulary and share it;
// it is never mutated after construction.
type Vocabulary struct {
	EntityKeys     []string `yaml:"entity_keys"`
	ILIKeys        []string `yaml:"ili_keys"`
	SARIKeys       []string `yaml:"sari_keys"`
	DeltaKeys      []string `yaml:"delta_keys"`
	PercentMarkers []string `yaml:"percent_markers"`

	// Rows whose entity name equals a Stoplist entry, starts with a
	// StopPrefixes entry or contains a StopContains entry are skipped.
	Stoplist     []string `yaml:"stoplist"`
	StopPrefixes []string `yaml:"stop_prefixes"`
	StopContains []string `yaml:"stop_contains"`

	// EntityLabel is the canonical header label for the entity column.
	EntityLabel string `yaml:"entity_label"`

	Weights     map[model.Family]WeightEntry `yaml:"weights"`
	RowBonusCap int                          `yaml:"row_bonus_cap"`

	// SectionLabel marks the primary table's caption ("表1").
	SectionLabel string `yaml:"section_label"`

	sectionRe *regexp.Regexp
}

// DefaultVocabulary returns the keyword set for Chinese-language respiratory
// pathogen bulletins.
func DefaultVocabulary() *Vocabulary {
	v := defaultVocabulary()
	v.sectionRe = regexp.MustCompile(v.SectionLabel)
	return v
}

func defaultVocabulary() *Vocabulary {
	return &Vocabulary{
		EntityKeys:     []string{"病原体", "病原", "病原学", "Pathogen"},
		ILIKeys:        []string{"门急诊", "流感样", "ILI", "门诊"},
		SARIKeys:       []string{"住院", "严重急性", "SARI"},
		DeltaKeys:      []string{"较上周", "较上期", "变化"},
		PercentMarkers: []string{"%", "阳性率", "百分比", "比例", "率"},
		Stoplist:       []string{"合计", "总计", "病原体"},
		StopPrefixes:   []string{"第", "①", "②", "③", "注"},
		StopContains:   []string{"岁"},
		EntityLabel:    "病原体",
		Weights: map[model.Family]WeightEntry{
			model.FamilyEntity: {Header: 4, Body: 2},
			model.FamilyILI:    {Header: 3, Body: 2},
			model.FamilySARI:   {Header: 3, Body: 2},
		},
		RowBonusCap:  10,
		SectionLabel: `表\s*[1一I][^\n]*`,
	}
}

// LoadVocabulary reads a YAML keyword file with a top-level "vocabulary"
// key. Fields absent from the file keep their default values.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read vocabulary %s", path)
	}

	wrapper := struct {
		Vocabulary *Vocabulary `yaml:"vocabulary"`
	}{Vocabulary: defaultVocabulary()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "extract: parse vocabulary")
	}

	v := wrapper.Vocabulary
	if len(v.EntityKeys) == 0 {
		return nil, eris.New("extract: vocabulary entity_keys must not be empty")
	}
	if strings.TrimSpace(v.EntityLabel) == "" {
		v.EntityLabel = v.EntityKeys[0]
	}
	re, err := regexp.Compile(v.SectionLabel)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: compile section_label %q", v.SectionLabel)
	}
	v.sectionRe = re
	return v, nil
}

// Keys returns the keyword list for a family.
func (v *Vocabulary) Keys(f model.Family) []string {
	switch f {
	case model.FamilyEntity:
		return v.EntityKeys
	case model.FamilyILI:
		return v.ILIKeys
	case model.FamilySARI:
		return v.SARIKeys
	}
	return nil
}

// Weight returns the score weights for a family.
func (v *Vocabulary) Weight(f model.Family) WeightEntry {
	return v.Weights[f]
}

// IsEntityLabel reports whether s names the entity column.
func (v *Vocabulary) IsEntityLabel(s string) bool {
	return containsAny(s, v.EntityKeys)
}

// IsDeltaLabel reports whether s names a change-vs-previous-period column.
func (v *Vocabulary) IsDeltaLabel(s string) bool {
	return containsAny(s, v.DeltaKeys)
}

// Stopped reports whether an entity name is an aggregate, header echo,
// age bracket or footnote rather than a pathogen.
func (v *Vocabulary) Stopped(name string) bool {
	for _, s := range v.Stoplist {
		if name == s {
			return true
		}
	}
	if name == v.EntityLabel {
		return true
	}
	for _, p := range v.StopPrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return containsAny(name, v.StopContains)
}

// section returns the compiled caption pattern. Vocabularies built as
// literals compile on each call; an invalid or empty pattern disables
// caption detection.
func (v *Vocabulary) section() *regexp.Regexp {
	if v.sectionRe != nil {
		return v.sectionRe
	}
	if v.SectionLabel == "" {
		return nil
	}
	re, err := regexp.Compile(v.SectionLabel)
	if err != nil {
		return nil
	}
	return re
}
