package drivercore

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// recEncMode encodes records with nanosecond timestamps and canonical key order.
var recEncMode cbor.EncMode

// recDecMode decodes records.
var recDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	recDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// Record is one driver event as written by a Recorder.
// CBOR encoding uses integer keys for compactness.
type Record struct {
	Seq       uint64          `cbor:"1,keyasint"`
	SessionID string          `cbor:"2,keyasint"`
	Timestamp time.Time       `cbor:"3,keyasint"`
	DriverID  string          `cbor:"4,keyasint,omitempty"`
	Topic     string          `cbor:"5,keyasint"`
	Payload   cbor.RawMessage `cbor:"6,keyasint,omitempty"`
}

// DecodePayload decodes the recorded payload into v
func (r Record) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return recDecMode.Unmarshal(r.Payload, v)
}

// Recorder writes driver events to a CBOR stream, one record per event
type Recorder struct {
	mu        sync.Mutex
	enc       *cbor.Encoder
	clock     Clock
	logger    Logger
	sessionID string
	seq       uint64
	offs      []func()
	closed    bool
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

func WithRecorderClock(c Clock) RecorderOption {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithRecorderLogger(l Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a recorder writing to w
func NewRecorder(w io.Writer, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		enc:       recEncMode.NewEncoder(w),
		clock:     NewSystemClock(),
		logger:    NopLogger(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionID identifies every record written by this recorder
func (r *Recorder) SessionID() string { return r.sessionID }

// Attach records every event of d until Close
func (r *Recorder) Attach(d *Driver) {
	driverID := d.ID()
	off := d.On(WildcardTopic, func(e Event) {
		if err := r.record(driverID, e); err != nil {
			r.logger.Warn("record event failed", "driver_id", driverID, "topic", e.Topic, "err", err)
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		off()
		return
	}
	r.offs = append(r.offs, off)
}

// Record writes one event that did not come from an attached driver
func (r *Recorder) Record(e Event) error {
	return r.record("", e)
}

func (r *Recorder) record(driverID string, e Event) error {
	var payload cbor.RawMessage
	if e.Payload != nil {
		b, err := recEncMode.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRecorderClosed
	}
	r.seq++
	rec := Record{
		Seq:       r.seq,
		SessionID: r.sessionID,
		Timestamp: r.clock.Now(),
		DriverID:  driverID,
		Topic:     e.Topic,
		Payload:   payload,
	}
	return r.enc.Encode(rec)
}

// Close detaches from every driver. The underlying writer is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	offs := r.offs
	r.offs = nil
	r.closed = true
	r.mu.Unlock()

	for _, off := range offs {
		off()
	}
	return nil
}

var errRecorderClosed = errors.New("recorder closed")

// ReadRecords decodes every record from rd
func ReadRecords(rd io.Reader) ([]Record, error) {
	dec := recDecMode.NewDecoder(rd)
	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}
