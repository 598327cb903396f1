// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package trigger_engine

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// knownIntents is the closed set of intents a trigger may map to.
// OUT_OF_SCOPE is deliberately absent: it is the router's default when
// nothing here fires, never a trigger target.
var knownIntents = map[string]bool{
	"PII_SEARCH": true,
	"AML_SEARCH": true,
	"REG_SEARCH": true,
	"SAR_DRAFT":  true,
}

type TriggerTableFile struct {
	Version          string            `yaml:"version"`
	IntentTriggers   []IntentTriggers  `yaml:"intents"`
	AmbiguityMarkers []AmbiguityMarker `yaml:"ambiguity_markers"`
}

type IntentTriggers struct {
	Intent           string           `yaml:"intent"`
	Description      string           `yaml:"description"`
	Priority         int              `yaml:"priority"`
	Triggers         []Trigger        `yaml:"triggers"`
	CompiledTriggers []*regexp.Regexp `yaml:"-"`
}

// Trigger is a single routing rule. Exactly one of Phrase or Regex must
// be set. Phrases match as case-insensitive substrings; regexes compile
// as written.
type Trigger struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Phrase          string          `yaml:"phrase"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

// AmbiguityMarker flags phrasing that weakens a trigger match, such as
// negation or asking for a definition of a trigger word.
type AmbiguityMarker struct {
	Id              string         `yaml:"id"`
	Description     string         `yaml:"description"`
	Regex           string         `yaml:"regex"`
	compiledPattern *regexp.Regexp `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incomingConfidence := ConfidenceLevel(s)
	switch incomingConfidence {
	case High, Medium, Low:
		*c = incomingConfidence
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incomingConfidence)
	}
}

// MultiWord reports whether the trigger is an exact multi-word phrase.
// Multi-word phrase matches start at a higher confidence base than
// single-word or regex matches.
func (t *Trigger) MultiWord() bool {
	for _, r := range t.Phrase {
		if r == ' ' {
			return true
		}
	}
	return false
}

func (f *TriggerTableFile) CompileTriggers() error {
	for i := range f.IntentTriggers {
		it := &f.IntentTriggers[i]
		if !knownIntents[it.Intent] {
			return fmt.Errorf("unknown intent %q in trigger table", it.Intent)
		}
		for j := range it.Triggers {
			trigger := &it.Triggers[j]
			if (trigger.Phrase == "") == (trigger.Regex == "") {
				return fmt.Errorf("trigger %s must set exactly one of phrase or regex", trigger.Id)
			}
			pattern := trigger.Regex
			if pattern == "" {
				pattern = "(?i)" + regexp.QuoteMeta(trigger.Phrase)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("failed to compile the trigger %s: %w", trigger.Id, err)
			}
			it.CompiledTriggers = append(it.CompiledTriggers, re)
			trigger.compiledPattern = re
		}
	}
	for i := range f.AmbiguityMarkers {
		marker := &f.AmbiguityMarkers[i]
		re, err := regexp.Compile(marker.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile the ambiguity marker %s: %w", marker.Id, err)
		}
		marker.compiledPattern = re
	}
	return nil
}

func (f *TriggerTableFile) SortByPriority() {
	sort.SliceStable(f.IntentTriggers, func(i, j int) bool {
		return f.IntentTriggers[i].Priority > f.IntentTriggers[j].Priority
	})
}

// TriggerHit records one trigger firing against a query, including the
// verbatim query text that matched so the router can quote it.
type TriggerHit struct {
	Intent     string          `json:"intent"`
	TriggerId  string          `json:"trigger_id"`
	Matched    string          `json:"matched"`
	Confidence ConfidenceLevel `json:"confidence"`
	MultiWord  bool            `json:"multi_word"`
}
