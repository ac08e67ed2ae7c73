// Package questions holds the static per-domain question sets. The tables
// are parsed once from an embedded file at startup and are read-only from
// then on, so any number of concurrent evaluations may share them without
// synchronization.
package questions

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Domain selects a question set.
type Domain string

const (
	DomainCognitive          Domain = "cognitive"
	DomainPsychological      Domain = "psychological"
	DomainPsychopathological Domain = "psychopathological"
)

// ErrUnknownDomain is returned for domains outside the closed set.
var ErrUnknownDomain = errors.New("unknown evaluation domain")

// Question is one scored evaluative question. Immutable after load.
type Question struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category" json:"category"`
	Prompt   string `yaml:"prompt" json:"prompt"`
	Ordinal  int    `yaml:"-" json:"ordinal"`
}

// Set is a domain's ordered question list plus its instruction preamble.
type Set struct {
	Domain    Domain
	Preamble  string
	Questions []Question
}

//go:embed sets.yaml
var setsFile []byte

type setsDoc struct {
	Domains map[string]struct {
		Preamble  string     `yaml:"preamble"`
		Questions []Question `yaml:"questions"`
	} `yaml:"domains"`
}

var tables map[Domain]Set

func init() {
	loaded, err := parse(setsFile)
	if err != nil {
		panic(fmt.Sprintf("questions: embedded sets.yaml invalid: %v", err))
	}
	tables = loaded
}

func parse(raw []byte) (map[Domain]Set, error) {
	var doc setsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Domains) == 0 {
		return nil, errors.New("no domains defined")
	}
	out := make(map[Domain]Set, len(doc.Domains))
	for name, entry := range doc.Domains {
		if len(entry.Questions) == 0 {
			return nil, fmt.Errorf("domain %q has no questions", name)
		}
		seen := make(map[string]struct{}, len(entry.Questions))
		qs := make([]Question, len(entry.Questions))
		for i, q := range entry.Questions {
			if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Prompt) == "" {
				return nil, fmt.Errorf("domain %q question %d missing id or prompt", name, i)
			}
			if _, dup := seen[q.ID]; dup {
				return nil, fmt.Errorf("domain %q duplicate question id %q", name, q.ID)
			}
			seen[q.ID] = struct{}{}
			q.Ordinal = i
			q.Prompt = strings.TrimSpace(q.Prompt)
			qs[i] = q
		}
		out[Domain(name)] = Set{
			Domain:    Domain(name),
			Preamble:  strings.TrimSpace(entry.Preamble),
			Questions: qs,
		}
	}
	return out, nil
}

// ParseDomain normalizes and validates a domain string.
func ParseDomain(raw string) (Domain, error) {
	normalized := Domain(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := tables[normalized]; !ok {
		return "", ErrUnknownDomain
	}
	return normalized, nil
}

// ForDomain returns the question set for a domain.
func ForDomain(domain Domain) (Set, error) {
	set, ok := tables[domain]
	if !ok {
		return Set{}, ErrUnknownDomain
	}
	return set, nil
}

// Domains lists the known domains in stable order.
func Domains() []Domain {
	out := make([]Domain, 0, len(tables))
	for d := range tables {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
