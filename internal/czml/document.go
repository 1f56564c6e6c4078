package czml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned for data that is not a CZML packet array.
var ErrInvalidDocument = errors.New("invalid czml document")

// Document is a loaded CZML stream. Packets are kept undecoded; the viewer
// interprets them.
type Document struct {
	Name    string
	Packets []json.RawMessage
}

type packetHeader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParseDocument checks that data is a JSON array whose first packet is the
// "document" packet.
func ParseDocument(data []byte) (*Document, error) {
	var packets []json.RawMessage
	if err := json.Unmarshal(data, &packets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("%w: no packets", ErrInvalidDocument)
	}

	var head packetHeader
	if err := json.Unmarshal(packets[0], &head); err != nil {
		return nil, fmt.Errorf("%w: first packet: %v", ErrInvalidDocument, err)
	}
	if head.ID != "document" {
		return nil, fmt.Errorf("%w: first packet id %q, want \"document\"", ErrInvalidDocument, head.ID)
	}

	return &Document{Name: head.Name, Packets: packets}, nil
}
