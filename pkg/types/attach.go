package types

import (
	"encoding/json"
	"fmt"
)

// AttachKind tags the variants of Attach.
type AttachKind string

const (
	AttachPhoto   AttachKind = "PHOTO"
	AttachVideo   AttachKind = "VIDEO"
	AttachFile    AttachKind = "FILE"
	AttachUnknown AttachKind = ""
)

// Attach is a message attachment. The concrete type is one of *PhotoAttach,
// *VideoAttach, *FileAttach or *UnknownAttach; switch on it or on Kind.
type Attach interface {
	Kind() AttachKind
}

type PhotoAttach struct {
	PhotoID    int64  `json:"photoId"`
	BaseURL    string `json:"baseUrl"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	PhotoToken string `json:"photoToken,omitempty"`
}

type VideoAttach struct {
	VideoID   int64  `json:"videoId"`
	Duration  int    `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Token     string `json:"token,omitempty"`
}

type FileAttach struct {
	FileID int64  `json:"fileId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Token  string `json:"token,omitempty"`
}

// UnknownAttach keeps the raw payload of an attachment kind the client does not model.
type UnknownAttach struct {
	Type string
	Raw  json.RawMessage
}

func (*PhotoAttach) Kind() AttachKind   { return AttachPhoto }
func (*VideoAttach) Kind() AttachKind   { return AttachVideo }
func (*FileAttach) Kind() AttachKind    { return AttachFile }
func (*UnknownAttach) Kind() AttachKind { return AttachUnknown }

// Attaches decodes a JSON array of attachments using the "_type" discriminator.
type Attaches []Attach

func (a *Attaches) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	out := make(Attaches, 0, len(raws))
	for i, raw := range raws {
		att, err := decodeAttach(raw)
		if err != nil {
			return fmt.Errorf("attach %d: %w", i, err)
		}
		out = append(out, att)
	}
	*a = out
	return nil
}

func decodeAttach(raw json.RawMessage) (Attach, error) {
	var head struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	var att Attach
	switch AttachKind(head.Type) {
	case AttachPhoto:
		att = &PhotoAttach{}
	case AttachVideo:
		att = &VideoAttach{}
	case AttachFile:
		att = &FileAttach{}
	default:
		return &UnknownAttach{Type: head.Type, Raw: raw}, nil
	}
	if err := json.Unmarshal(raw, att); err != nil {
		return nil, err
	}
	return att, nil
}
