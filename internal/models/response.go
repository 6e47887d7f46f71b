package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Meta carries response metadata.
type Meta struct {
	Count int `json:"count"`
}

// Response is the result of a query or a mutation.
//
// Data holds either a single document (Single is true) or a list.
type Response struct {
	Data     []*Document
	Single   bool
	Included []*Document
	Meta     *Meta
	Next     bool
	Skip     int
}

// NewListResponse returns a list response for docs.
func NewListResponse(docs []*Document) *Response {
	if docs == nil {
		docs = []*Document{}
	}
	return &Response{Data: docs}
}

// NewSingleResponse returns a single-document response. A nil doc yields
// an empty single response.
func NewSingleResponse(doc *Document) *Response {
	resp := &Response{Single: true, Data: []*Document{}}
	if doc != nil {
		resp.Data = append(resp.Data, doc)
	}
	return resp
}

// Doc returns the first document of the response, or nil.
func (r *Response) Doc() *Document {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	return r.Data[0]
}

// Clone returns a shallow copy of the response.
func (r *Response) Clone() *Response {
	c := *r
	return &c
}

// Copy returns a copy of the response whose documents can be modified
// without affecting r.
func (r *Response) Copy() *Response {
	c := *r
	c.Data = copyDocuments(r.Data)
	c.Included = copyDocuments(r.Included)
	return &c
}

func copyDocuments(docs []*Document) []*Document {
	if docs == nil {
		return nil
	}
	out := make([]*Document, len(docs))
	for i, doc := range docs {
		if doc != nil {
			out[i] = doc.Copy()
		}
	}
	return out
}

type wireResponse struct {
	Data     json.RawMessage `json:"data"`
	Included []*Document     `json:"included,omitempty"`
	Meta     *Meta           `json:"meta,omitempty"`
	Next     bool            `json:"next,omitempty"`
	Skip     int             `json:"skip,omitempty"`
}

// MarshalJSON encodes data as an object for single responses, else as a list.
func (r *Response) MarshalJSON() ([]byte, error) {
	var data []byte
	var err error
	switch {
	case r.Single && len(r.Data) > 0:
		data, err = json.Marshal(r.Data[0])
	case r.Single:
		data = []byte("null")
	default:
		docs := r.Data
		if docs == nil {
			docs = []*Document{}
		}
		data, err = json.Marshal(docs)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(&wireResponse{
		Data:     data,
		Included: r.Included,
		Meta:     r.Meta,
		Next:     r.Next,
		Skip:     r.Skip,
	})
}

// UnmarshalJSON accepts data as an object, a list or null.
func (r *Response) UnmarshalJSON(b []byte) error {
	var w wireResponse
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*r = Response{Included: w.Included, Meta: w.Meta, Next: w.Next, Skip: w.Skip}
	data := bytes.TrimSpace(w.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		r.Data = []*Document{}
	case data[0] == '{':
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
		r.Single = true
		r.Data = []*Document{&doc}
	default:
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
