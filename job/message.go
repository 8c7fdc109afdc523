package job

import (
	"encoding/json"
	"strings"

	"github.com/teranos/scrapedash/errors"
)

// ErrMalformed is returned for payloads that do not match the shape of their kind.
var ErrMalformed = errors.ErrMalformedMessage

// Kind identifies the push message type.
type Kind string

const (
	KindURLAdd       Kind = "url_add"
	KindStatusChange Kind = "status_change"
)

// Envelope is the frame delivered over the push channel.
type Envelope struct {
	Message Kind            `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

// Message is a decoded push notification: either *URLAdd or *StatusChange.
type Message interface {
	Kind() Kind
	JobID() string
}

// URLAdd announces a job the backend has just created.
type URLAdd struct {
	Record Record
}

func (m *URLAdd) Kind() Kind    { return KindURLAdd }
func (m *URLAdd) JobID() string { return m.Record.ID }

// StatusChange reports a new status for an existing job plus the fields
// that became available with it.
type StatusChange struct {
	ID     string
	Status Status
	Fields Fields
}

func (m *StatusChange) Kind() Kind    { return KindStatusChange }
func (m *StatusChange) JobID() string { return m.ID }

// statusPayload is the field set a status_change may carry.
type statusPayload struct {
	ID          string  `json:"uuid"`
	Status      string  `json:"status"`
	Title       *string `json:"title"`
	Heading     *string `json:"h1"`
	ImageSource *string `json:"image_src"`
	ImagePath   *string `json:"image_path"`
	Error       *string `json:"error"`
}

// Decode parses a raw push frame into a typed Message.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return env.Decode()
}

// Decode interprets the payload according to the envelope kind.
func (e Envelope) Decode() (Message, error) {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil, errors.Wrapf(ErrMalformed, "%s without payload", e.Message)
	}

	switch e.Message {
	case KindURLAdd:
		var w Wire
		if err := json.Unmarshal(e.Payload, &w); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "url_add payload: %v", err)
		}
		rec, err := w.Record()
		if err != nil {
			return nil, err
		}
		return &URLAdd{Record: rec}, nil

	case KindStatusChange:
		var p statusPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "status_change payload: %v", err)
		}
		if strings.TrimSpace(p.ID) == "" {
			return nil, errors.Wrap(ErrMalformed, "status_change without uuid")
		}
		status, ok := ParseStatus(p.Status)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "status_change for %s has unknown status %q", p.ID, p.Status)
		}
		fields := Fields{
			Title:       p.Title,
			Heading:     p.Heading,
			ImageSource: p.ImageSource,
			ImagePath:   p.ImagePath,
			Error:       nonEmpty(p.Error),
		}
		return &StatusChange{ID: p.ID, Status: status, Fields: fields}, nil

	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown message kind %q", e.Message)
	}
}

// Encode builds the wire frame for m. The fake backend uses it to publish.
func Encode(m Message) ([]byte, error) {
	var payload interface{}
	switch msg := m.(type) {
	case *URLAdd:
		payload = ToWire(msg.Record)
	case *StatusChange:
		p := statusPayload{
			ID:          msg.ID,
			Status:      msg.Status.String(),
			Title:       msg.Fields.Title,
			Heading:     msg.Fields.Heading,
			ImageSource: msg.Fields.ImageSource,
			ImagePath:   msg.Fields.ImagePath,
			Error:       msg.Fields.Error,
		}
		payload = p
	default:
		return nil, errors.Newf("cannot encode message of type %T", m)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}
	return json.Marshal(Envelope{Message: m.Kind(), Payload: body})
}
