package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"recipeagent"
)

// ErrTxnClosed is returned when a transaction is used after Commit or Abort.
var ErrTxnClosed = errors.New("session transaction already closed")

// Session is the conversation state for one session id.
type Session struct {
	ID              string                                 `json:"id"`
	Turns           []recipeagent.Turn                     `json:"turns"`
	Preferences     recipeagent.Preferences                `json:"preferences"`
	ProcessedImages map[string]recipeagent.DetectionResult `json:"processed_images,omitempty"`
	CreatedAt       time.Time                              `json:"created_at"`
	UpdatedAt       time.Time                              `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Preferences = s.Preferences.Clone()
	out.Turns = make([]recipeagent.Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t.Clone()
	}
	if s.ProcessedImages != nil {
		out.ProcessedImages = make(map[string]recipeagent.DetectionResult, len(s.ProcessedImages))
		for k, v := range s.ProcessedImages {
			out.ProcessedImages[k] = v.Clone()
		}
	}
	return out
}

// LastIngredients returns the ingredients of the most recent turn that
// carried any, or nil.
func (s Session) LastIngredients() []string {
	for _, t := range slices.Backward(s.Turns) {
		if len(t.Ingredients) > 0 {
			return slices.Clone(t.Ingredients)
		}
	}
	return nil
}

// Detection looks up a cached detection by image fingerprint.
func (s Session) Detection(fingerprint string) (recipeagent.DetectionResult, bool) {
	r, ok := s.ProcessedImages[fingerprint]
	if !ok {
		return recipeagent.DetectionResult{}, false
	}
	return r.Clone(), true
}

// Delta is everything a single turn writes back to its session.
type Delta struct {
	Turns       []recipeagent.Turn
	Preferences recipeagent.PreferenceDelta
	Detections  map[string]recipeagent.DetectionResult
}

func (d Delta) clone() Delta {
	out := Delta{Preferences: d.Preferences.Clone()}
	for _, t := range d.Turns {
		out.Turns = append(out.Turns, t.Clone())
	}
	if len(d.Detections) > 0 {
		out.Detections = make(map[string]recipeagent.DetectionResult, len(d.Detections))
		for k, v := range d.Detections {
			out.Detections[k] = v.Clone()
		}
	}
	return out
}

func (d Delta) IsEmpty() bool {
	return len(d.Turns) == 0 && d.Preferences.IsEmpty() && len(d.Detections) == 0
}

type Store interface {
	// Get returns a copy of the session, creating it on first access.
	Get(ctx context.Context, id string) (Session, error)
	AppendTurn(ctx context.Context, id string, turn recipeagent.Turn) error
	Preferences(ctx context.Context, id string) (recipeagent.Preferences, error)
	CacheDetection(ctx context.Context, id, fingerprint string, result recipeagent.DetectionResult) error
	// Begin waits for every earlier transaction on the same id to finish
	// and returns a snapshot plus the exclusive right to write the session.
	Begin(ctx context.Context, id string) (*Txn, error)
}

// Txn holds the single writer slot of one session. Exactly one of Commit or
// Abort must be called.
type Txn struct {
	snapshot Session
	commit   func(Delta)
	release  func()
	closed   bool
}

// Session returns the snapshot taken when the transaction began.
func (t *Txn) Session() Session {
	return t.snapshot.Clone()
}

// Commit applies d atomically and releases the slot.
func (t *Txn) Commit(d Delta) error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	t.commit(d.clone())
	t.release()
	return nil
}

// Abort releases the slot without writing anything. It is safe to call
// after Commit.
func (t *Txn) Abort() {
	if t.closed {
		return
	}
	t.closed = true
	t.release()
}

// mergeDetections copies src into dst, allocating dst when needed.
func mergeDetections(dst, src map[string]recipeagent.DetectionResult) map[string]recipeagent.DetectionResult {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]recipeagent.DetectionResult, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
