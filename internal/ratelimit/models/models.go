package models

import (
	"fmt"
	"time"

	dErrors "hearth/pkg/domain-errors"
)

type EndpointClass string

const (
	// ClassAuth: login/token endpoints, tightest quota
	ClassAuth EndpointClass = "auth"
	// ClassAPI: general API traffic, the default class
	ClassAPI EndpointClass = "api"
	// ClassShopping: shopping list mutations
	ClassShopping EndpointClass = "shopping"
	// ClassChores: chore assignments and completions
	ClassChores EndpointClass = "chores"
	// ClassBills: bill creation and payment records
	ClassBills EndpointClass = "bills"
	// ClassMealPlanner: meal plan generation (expensive)
	ClassMealPlanner EndpointClass = "meal-planner"
	// ClassAnalytics: reporting queries (expensive)
	ClassAnalytics EndpointClass = "analytics"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassAuth, ClassAPI, ClassShopping, ClassChores, ClassBills, ClassMealPlanner, ClassAnalytics:
		return true
	}
	return false
}

func (c EndpointClass) String() string {
	return string(c)
}

// CounterKey identifies one fixed-window request counter. There is at most one
// logical counter per key; stores enforce this with upsert semantics.
type CounterKey struct {
	SubjectID   string
	Endpoint    string
	WindowStart time.Time
}

// NewCounterKey validates the key components.
func NewCounterKey(subjectID, endpoint string, windowStart time.Time) (CounterKey, error) {
	if subjectID == "" {
		return CounterKey{}, dErrors.New(dErrors.CodeInvalidInput, "subject_id cannot be empty")
	}
	if endpoint == "" {
		return CounterKey{}, dErrors.New(dErrors.CodeInvalidInput, "endpoint cannot be empty")
	}
	if windowStart.IsZero() {
		return CounterKey{}, dErrors.New(dErrors.CodeInvalidInput, "window_start cannot be zero")
	}
	return CounterKey{SubjectID: subjectID, Endpoint: endpoint, WindowStart: windowStart}, nil
}

// String renders the composite key for map and redis keys.
func (k CounterKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.SubjectID, k.Endpoint, k.WindowStart.Unix())
}

// WindowStart floors now to the nearest multiple of the window, so a 15m window
// buckets requests into :00/:15/:30/:45 and a 60m window into the top of the hour.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

// RateLimitResult is the outcome of one quota check.
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Class      EndpointClass `json:"class"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter int           `json:"retry_after,omitempty"` // seconds, only set when not allowed
}
