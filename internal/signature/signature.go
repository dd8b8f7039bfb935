package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Delimiter between the signed fields. Ticket ids and event ids are
// dash/underscore identifiers and emails cannot contain it, so the
// concatenation is unambiguous.
const fieldDelimiter = "|"

// Signatures are truncated to this many hex characters to keep QR payloads
// and composite ids compact.
const digestHexLen = 16

// Service produces and verifies the keyed digest binding a ticket to an
// attendee email and an event. It holds an ordered key list: the first key
// signs new tickets, every key verifies, so a rotated-out key keeps old
// tickets scannable.
type Service struct {
	keys [][]byte
}

func NewService(keys []string) (*Service, error) {
	if len(keys) == 0 {
		return nil, errors.New("signature: at least one signing key is required")
	}
	s := &Service{keys: make([][]byte, 0, len(keys))}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, errors.New("signature: empty signing key")
		}
		s.keys = append(s.keys, []byte(k))
	}
	return s, nil
}

// NormalizeEmail lower-cases and trims an email the way issuance does before
// signing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Sign computes the ticket signature with the active (first) key. The email
// is normalized before signing; newly issued tickets never carry raw-email
// signatures.
func (s *Service) Sign(ticketID, email, eventID string) string {
	return s.signWith(s.keys[0], ticketID, NormalizeEmail(email), eventID)
}

// Verify checks the signature against every configured key, trying the
// normalized email first and falling back to the raw email exactly as
// stored. The raw retry keeps tickets signed before email normalization was
// introduced verifiable; dropping it would strand historical tickets.
func (s *Service) Verify(ticketID, email, eventID, sig string) bool {
	sig = strings.ToUpper(strings.TrimSpace(sig))
	if sig == "" {
		return false
	}

	emails := []string{NormalizeEmail(email)}
	if email != emails[0] {
		emails = append(emails, email)
	}

	for _, key := range s.keys {
		for _, em := range emails {
			want := s.signWith(key, ticketID, em, eventID)
			if hmac.Equal([]byte(want), []byte(sig)) {
				return true
			}
		}
	}
	return false
}

func (s *Service) signWith(key []byte, ticketID, email, eventID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ticketID))
	mac.Write([]byte(fieldDelimiter))
	mac.Write([]byte(email))
	mac.Write([]byte(fieldDelimiter))
	mac.Write([]byte(eventID))
	digest := hex.EncodeToString(mac.Sum(nil))
	return strings.ToUpper(digest[:digestHexLen])
}
