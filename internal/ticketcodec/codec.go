package ticketcodec

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Version tags the wire format a scanned payload arrived in.
type Version string

const (
	// VersionLegacy is the dash-delimited composite ticket id scanned
	// directly from older printed tickets.
	VersionLegacy Version = "legacy"
	// VersionV1 is the structured JSON payload embedded in current QR codes.
	VersionV1 Version = "1.0"
)

// Legacy composite ids are PREFIX-TIMESTAMP-RANDOM-SIGNATURE: at least four
// dash-separated segments, signature always last.
const minLegacySegments = 4

// ErrFormat means the payload matched neither wire format.
var ErrFormat = errors.New("payload is neither a structured ticket nor a legacy ticket code")

// Reference is the transient result of decoding a scan. EventID is only set
// for structured payloads; legacy codes carry no event binding of their own.
type Reference struct {
	BaseID    string
	EventID   string
	Signature string
	Version   Version
}

// CompositeID rebuilds the composite ticket id the normalized store is keyed
// by.
func (r Reference) CompositeID() string {
	return r.BaseID + "-" + r.Signature
}

// payloadV1 is the structured QR payload. Field names are part of the wire
// contract with already-issued tickets and must not change.
type payloadV1 struct {
	TicketID  string `json:"tId"`
	EventID   string `json:"eId"`
	Signature string `json:"s"`
	Version   string `json:"v"`
}

func (p payloadV1) complete() bool {
	return p.TicketID != "" && p.EventID != "" && p.Signature != "" && p.Version != ""
}

// Decode parses a scanned string into a Reference. It tries the structured
// JSON shape first; on decode failure or any missing field it falls back to
// the legacy composite id. Only a payload matching neither form is a format
// error.
func Decode(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, ErrFormat
	}

	var p payloadV1
	if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.complete() {
		return Reference{
			BaseID:    p.TicketID,
			EventID:   p.EventID,
			Signature: p.Signature,
			Version:   VersionV1,
		}, nil
	}

	return decodeLegacy(trimmed)
}

func decodeLegacy(raw string) (Reference, error) {
	segments := strings.Split(raw, "-")
	if len(segments) < minLegacySegments {
		return Reference{}, ErrFormat
	}
	last := len(segments) - 1
	if segments[last] == "" {
		return Reference{}, ErrFormat
	}
	return Reference{
		BaseID:    strings.Join(segments[:last], "-"),
		Signature: segments[last],
		Version:   VersionLegacy,
	}, nil
}

// EncodeComposite builds the legacy composite ticket id from a base id and
// its signature.
func EncodeComposite(baseID, sig string) string {
	return baseID + "-" + sig
}

// EncodeStructured builds the structured v1.0 QR payload.
func EncodeStructured(baseID, eventID, sig string) (string, error) {
	if baseID == "" || eventID == "" || sig == "" {
		return "", errors.New("ticketcodec: base id, event id and signature are all required")
	}
	data, err := json.Marshal(payloadV1{
		TicketID:  baseID,
		EventID:   eventID,
		Signature: sig,
		Version:   string(VersionV1),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// QRImage renders a payload as a PNG QR code for printed or emailed tickets.
func QRImage(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}
