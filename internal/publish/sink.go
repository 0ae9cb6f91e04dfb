// Package publish ships solve reports over Redis pub/sub, wrapped in a signed
// envelope, and reads them back.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pdproute/internal/model"
)

// EventReport is the envelope type of a finished solve.
const EventReport = "pdp.report"

// Envelope wraps one report. Signature covers the raw Data bytes.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TS        string          `json:"ts"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

// Report decodes the wrapped report.
func (e Envelope) Report() (model.Report, error) {
	var r model.Report
	if err := json.Unmarshal(e.Data, &r); err != nil {
		return r, fmt.Errorf("publish: decode report: %w", err)
	}
	return r, nil
}

// Verified reports whether the envelope was signed with secret.
func (e Envelope) Verified(secret string) bool {
	return e.Signature != "" && Verify(secret, e.Data, e.Signature)
}

// NewEnvelope marshals r and signs it when secret is set.
func NewEnvelope(r model.Report, secret string) (Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("publish: encode report: %w", err)
	}
	env := Envelope{ID: "evt_" + uuid.NewString(), Type: EventReport, TS: time.Now().UTC().Format(time.RFC3339), Data: data}
	if secret != "" {
		env.Signature = Sign(secret, data)
	}
	return env, nil
}

// Sink receives finished reports.
type Sink interface {
	Publish(ctx context.Context, r model.Report) error
}

// PublishAll sends every report to sink, stopping at the first failure.
func PublishAll(ctx context.Context, sink Sink, reports []model.Report) error {
	for _, r := range reports {
		if err := sink.Publish(ctx, r); err != nil {
			return fmt.Errorf("publish %s: %w", r.RunID, err)
		}
	}
	return nil
}
