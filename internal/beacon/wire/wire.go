package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"ghostbeacon/pkg/shared"
)

// EncodingError reports a failure to serialize an outbound payload.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string { return fmt.Sprintf("wire: encode: %v", e.Err) }
func (e *EncodingError) Unwrap() error { return e.Err }

// ProtocolError reports a response body that is not valid under the wire
// format at all. A valid document without a commands field is NOT a protocol
// error; it decodes to an empty command list.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("wire: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Timestamp formats t for the wire (UTC, ISO-8601, second granularity).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// EncodeFirstCheckin serializes the snapshot-bearing first check-in.
func EncodeFirstCheckin(beaconID string, now time.Time, info *shared.SystemInfo) ([]byte, error) {
	return encode(&shared.CheckinRequest{
		BeaconID:   beaconID,
		Timestamp:  Timestamp(now),
		SystemInfo: info,
	})
}

// EncodeCheckin serializes a regular check-in carrying identity only.
func EncodeCheckin(beaconID string, now time.Time) ([]byte, error) {
	return encode(&shared.CheckinRequest{
		BeaconID:  beaconID,
		Timestamp: Timestamp(now),
	})
}

// EncodeResults serializes a result-bearing check-in.
func EncodeResults(beaconID string, now time.Time, results []shared.CommandResult) ([]byte, error) {
	return encode(&shared.CheckinRequest{
		BeaconID:       beaconID,
		Timestamp:      Timestamp(now),
		CommandResults: results,
	})
}

func encode(req *shared.CheckinRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

// DecodeResponse parses the commands array out of a check-in response body.
// "No commands" is the default, non-exceptional case: an absent or malformed
// commands field yields an empty list. Only a body that cannot be parsed as a
// structured document at all is a ProtocolError.
func DecodeResponse(body []byte) ([]shared.Command, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ProtocolError{Reason: "malformed response body", Err: err}
	}

	raw, ok := doc["commands"]
	if !ok {
		return []shared.Command{}, nil
	}

	var cmds []shared.Command
	if err := json.Unmarshal(raw, &cmds); err != nil || cmds == nil {
		return []shared.Command{}, nil
	}
	return cmds, nil
}
