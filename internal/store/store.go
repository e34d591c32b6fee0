// ABOUTME: Journal interface and call record types for gateway persistence
// ABOUTME: Defines CallRecord, CallFilter and the outcome/direction vocabulary

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Direction tells which side of the gateway a call entered from.
type Direction string

const (
	DirectionInbound  Direction = "inbound"  // SOAP client → fabric service
	DirectionOutbound Direction = "outbound" // fabric consumer → remote SOAP service
)

// Outcome values recorded for a call.
const (
	OutcomeAccepted    = "accepted"
	OutcomeReply       = "reply"
	OutcomeFault       = "fault"
	OutcomeTimeout     = "timeout"
	OutcomeDispatch    = "dispatch_error"
	OutcomeTranslation = "translation_error"
	OutcomeError       = "error"
)

// CallRecord is one journaled call.
type CallRecord struct {
	ID            string
	Direction     Direction
	Service       string
	Operation     string
	Pattern       string // "in-only" or "in-out"
	Outcome       string
	CorrelationID string
	FaultCode     string
	Error         string
	Duration      time.Duration
	CreatedAt     time.Time
}

// CallFilter specifies filtering options for listing calls.
type CallFilter struct {
	Since     *time.Time
	Direction *Direction
	Service   *string
	Outcome   *string
	Limit     int // default 100, max 1000
}

// Journal records calls crossing the gateway.
type Journal interface {
	RecordCall(ctx context.Context, rec *CallRecord) error
	GetCall(ctx context.Context, id string) (*CallRecord, error)
	ListCalls(ctx context.Context, f CallFilter) ([]*CallRecord, error)
	CountByOutcome(ctx context.Context, service string) (map[string]int, error)
	Close() error
}
