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

	"github.com/AleutianAI/CompliancePilot/services/trigger_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// TriggerEngine is the keyword layer of intent classification. It holds
// the compiled trigger table and answers "which triggers fire for this
// query" without doing any scoring; scoring belongs to the router.
type TriggerEngine struct {
	Intents          []IntentTriggers
	AmbiguityMarkers []AmbiguityMarker
	version          string
}

// NewTriggerEngine initializes a new instance of the TriggerEngine.
//
// This function takes no arguments. It automatically loads the trigger
// table embedded in the binary via the enforcement package.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all phrase and regex patterns.
// 3. Sorts intents by priority.
//
// Returns an error if the embedded YAML is malformed or contains invalid regex.
func NewTriggerEngine() (*TriggerEngine, error) {
	var tableFile TriggerTableFile
	if err := yaml.Unmarshal(enforcement.IntentTriggerPatterns, &tableFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded trigger table: %w", err)
	}

	// Compile the patterns for performance and sort by priority
	if err := tableFile.CompileTriggers(); err != nil {
		return nil, fmt.Errorf("failed to compile a trigger: %w", err)
	}

	// Sort the intents from highest to lowest priority
	tableFile.SortByPriority()

	engine := &TriggerEngine{
		Intents:          tableFile.IntentTriggers,
		AmbiguityMarkers: tableFile.AmbiguityMarkers,
		version:          tableFile.Version,
	}
	return engine, nil
}

// Version returns the version string declared in the embedded table.
func (e *TriggerEngine) Version() string {
	return e.version
}

// MatchQuery checks every trigger against the query and returns one hit
// per trigger that fires, in priority order. The Matched field carries
// the verbatim query substring that fired so callers can quote it back
// to the user.
//
// A query that fires no trigger returns an empty slice. The engine does
// not deduplicate by intent; the router decides what overlapping hits
// mean.
func (e *TriggerEngine) MatchQuery(query string) []TriggerHit {
	var hits []TriggerHit
	for _, intent := range e.Intents {
		for _, trigger := range intent.Triggers {
			match := trigger.compiledPattern.FindString(query)
			if match == "" {
				continue
			}
			hits = append(hits, TriggerHit{
				Intent:     intent.Intent,
				TriggerId:  trigger.Id,
				Matched:    match,
				Confidence: trigger.Confidence,
				MultiWord:  trigger.MultiWord(),
			})
		}
	}
	return hits
}

// AmbiguitySignals returns the ids of every ambiguity marker present in
// the query. Each distinct marker lowers classification confidence by a
// fixed step downstream.
func (e *TriggerEngine) AmbiguitySignals(query string) []string {
	var signals []string
	for _, marker := range e.AmbiguityMarkers {
		if marker.compiledPattern.MatchString(query) {
			signals = append(signals, marker.Id)
		}
	}
	return signals
}
