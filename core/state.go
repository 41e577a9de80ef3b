// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// StateSchemaVersion is the current PipelineState serialization version.
// Decode rejects records written by a newer version.
const StateSchemaVersion = 1

// PipelineState is the persistent record of a document's progress through
// the ingestion pipeline. There is exactly one per (index, document id),
// and it is only mutated by the worker currently holding the document's
// queue lease.
type PipelineState struct {
	SchemaVersion  int            `json:"schema_version"`
	Index          string         `json:"index"`
	DocumentID     string         `json:"document_id"`
	CreationTime   time.Time      `json:"creation_time"`
	LastUpdateTime time.Time      `json:"last_update_time"`
	Tags           TagCollection  `json:"tags,omitempty"`
	Files          []*FileRef     `json:"files"`
	StepsToExecute []string       `json:"steps_to_execute"`
	StepsCompleted []string       `json:"steps_completed"`
	// StepTimes records when each completed step finished.
	StepTimes     map[string]time.Time `json:"step_times,omitempty"`
	Status        Status               `json:"status"`
	FailureReason *FailureReason       `json:"failure_reason,omitempty"`
}

// NewPipelineState creates the initial state for a freshly uploaded document.
func NewPipelineState(index, documentID string, tags TagCollection, steps []string) *PipelineState {
	now := time.Now().UTC()
	return &PipelineState{
		SchemaVersion:  StateSchemaVersion,
		Index:          index,
		DocumentID:     documentID,
		CreationTime:   now,
		LastUpdateTime: now,
		Tags:           tags.Clone(),
		StepsToExecute: append([]string(nil), steps...),
		StepsCompleted: []string{},
		StepTimes:      map[string]time.Time{},
		Status:         StatusPending,
	}
}

// NextStep returns the name of the next step to execute, or "" when none
// remain.
func (s *PipelineState) NextStep() string {
	if len(s.StepsToExecute) == 0 {
		return ""
	}
	return s.StepsToExecute[0]
}

// AdvanceStep pops the head of StepsToExecute into StepsCompleted and
// records the completion time. StepsCompleted stays a prefix of the
// originally requested sequence.
func (s *PipelineState) AdvanceStep() {
	if len(s.StepsToExecute) == 0 {
		return
	}
	step := s.StepsToExecute[0]
	s.StepsToExecute = s.StepsToExecute[1:]
	s.StepsCompleted = append(s.StepsCompleted, step)
	if s.StepTimes == nil {
		s.StepTimes = map[string]time.Time{}
	}
	s.StepTimes[step] = time.Now().UTC()
	s.Touch()
}

// Plan returns the originally requested step sequence.
func (s *PipelineState) Plan() []string {
	plan := make([]string, 0, len(s.StepsCompleted)+len(s.StepsToExecute))
	plan = append(plan, s.StepsCompleted...)
	plan = append(plan, s.StepsToExecute...)
	return plan
}

// Ready reports whether the document completed its entire pipeline.
func (s *PipelineState) Ready() bool {
	return s.Status == StatusComplete && len(s.StepsToExecute) == 0
}

// Touch updates the last-update timestamp.
func (s *PipelineState) Touch() {
	s.LastUpdateTime = time.Now().UTC()
}

// Fail marks the state failed with a structured reason.
func (s *PipelineState) Fail(step, message string) {
	s.Status = StatusFailed
	s.FailureReason = &FailureReason{Step: step, Message: message}
	s.Touch()
}

// FileByID returns the FileRef with the given file id, or nil.
func (s *PipelineState) FileByID(id string) *FileRef {
	for _, f := range s.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Encode serializes the state as versioned JSON.
func (s *PipelineState) Encode() ([]byte, error) {
	s.SchemaVersion = StateSchemaVersion
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return data, nil
}

// DecodeState deserializes a PipelineState, rejecting records written by an
// unknown newer schema version and records that fail basic integrity checks.
func DecodeState(data []byte) (*PipelineState, error) {
	var s PipelineState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	if s.SchemaVersion > StateSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, understand up to %d",
			ErrSchemaVersion, s.SchemaVersion, StateSchemaVersion)
	}
	if s.Index == "" || s.DocumentID == "" {
		return nil, fmt.Errorf("%w: missing index or document id", ErrCorruptState)
	}
	return &s, nil
}
