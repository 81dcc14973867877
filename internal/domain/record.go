package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResourceID is a processor-issued identifier. The processor may send it as a
// JSON number or a JSON string; numeric ids are written back as numbers.
type ResourceID string

func (id *ResourceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ResourceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("resource id: %w", err)
	}
	*id = ResourceID(n.String())
	return nil
}

func (id ResourceID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if s != "" && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSettled PaymentStatus = "settled"
	PaymentFailed  PaymentStatus = "failed"
)

// Terminal reports whether the processor has made its final determination.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSettled || s == PaymentFailed
}

// Record is the common {id, amount, status, ...} shape of every processor
// resource. The raw upstream body is kept so that fields this service does
// not model survive serialisation unchanged.
type Record struct {
	ID     ResourceID
	Amount Money
	Status string

	raw json.RawMessage
}

type recordFields struct {
	ID     ResourceID      `json:"id"`
	Amount json.RawMessage `json:"amount,omitempty"`
	Status string          `json:"status"`
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var f recordFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.ID = f.ID
	r.Status = f.Status
	r.Amount = 0
	if len(f.Amount) > 0 {
		// Amounts the processor formats unexpectedly are kept in raw only.
		var m Money
		if err := json.Unmarshal(f.Amount, &m); err == nil {
			r.Amount = m
		}
	}
	r.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	amount, err := json.Marshal(r.Amount)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordFields{ID: r.ID, Amount: amount, Status: r.Status})
}

// Hold is reserved-but-uncaptured funds on a card.
type Hold struct {
	Record
}

// Payment is the processor's payment resource; Status moves from pending to
// settled or failed.
type Payment struct {
	Record
}

func (p *Payment) State() PaymentStatus {
	return PaymentStatus(p.Status)
}

// Capture confirms that held funds were moved to settlement.
type Capture struct {
	Record
}
