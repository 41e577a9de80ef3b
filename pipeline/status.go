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


package pipeline

import (
	"context"
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/queue"
)

// StepStatus is one completed step with its completion time.
type StepStatus struct {
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// DocumentStatus is the read-only projection of a document's pipeline
// state exposed to external callers.
type DocumentStatus struct {
	Index          string              `json:"index"`
	DocumentID     string              `json:"documentId"`
	Status         core.Status         `json:"status"`
	Ready          bool                `json:"ready"`
	Completed      []StepStatus        `json:"completed"`
	Remaining      []string            `json:"remaining"`
	CreationTime   time.Time           `json:"creationTime"`
	LastUpdateTime time.Time           `json:"lastUpdateTime"`
	FailureReason  *core.FailureReason `json:"failureReason,omitempty"`
}

// StatusReporter projects pipeline state for status queries. It never
// mutates state.
type StatusReporter struct {
	states StateStore
	queue  queue.Queue
}

// NewStatusReporter creates a reporter over the given state store and queue.
func NewStatusReporter(states StateStore, q queue.Queue) *StatusReporter {
	return &StatusReporter{states: states, queue: q}
}

// StatusOf returns the projection for (index, documentID).
// Returns ErrStateNotFound when the document is unknown.
func (r *StatusReporter) StatusOf(ctx context.Context, index, documentID string) (*DocumentStatus, error) {
	st, err := r.states.Load(ctx, index, documentID)
	if err != nil {
		return nil, err
	}

	completed := make([]StepStatus, 0, len(st.StepsCompleted))
	for _, step := range st.StepsCompleted {
		completed = append(completed, StepStatus{
			Name:        step,
			CompletedAt: st.StepTimes[step],
		})
	}

	return &DocumentStatus{
		Index:          st.Index,
		DocumentID:     st.DocumentID,
		Status:         st.Status,
		Ready:          st.Ready(),
		Completed:      completed,
		Remaining:      append([]string(nil), st.StepsToExecute...),
		CreationTime:   st.CreationTime,
		LastUpdateTime: st.LastUpdateTime,
		FailureReason:  st.FailureReason,
	}, nil
}

// List returns the status projection of every document in an index.
func (r *StatusReporter) List(ctx context.Context, index string) ([]*DocumentStatus, error) {
	ids, err := r.states.List(ctx, index)
	if err != nil {
		return nil, err
	}
	out := make([]*DocumentStatus, 0, len(ids))
	for _, id := range ids {
		ds, err := r.StatusOf(ctx, index, id)
		if err != nil {
			// A document deleted between listing and loading just drops out.
			continue
		}
		out = append(out, ds)
	}
	return out, nil
}

// DeadLetters surfaces the queue's poisoned messages.
func (r *StatusReporter) DeadLetters(ctx context.Context) ([]queue.Message, error) {
	if r.queue == nil {
		return nil, nil
	}
	return r.queue.DeadLetters(ctx)
}
