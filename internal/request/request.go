// Package request parses chat messages into request records.
//
// A request message is a short labelled block, optionally wrapped in a code fence:
//
//	User: @alice
//	Request: Fix login bug
//	Date: 2024-01-05
//
//	Additional context here
//
// Everything after the first blank line is kept as free-form extra text.
package request

import (
	"strings"
	"time"
)

// DoneReaction is the default reaction that marks a request as done.
const DoneReaction = "✅"

// Request is a single tracked request.
//
// Author, ShortDescription, RequestDate and Extra come from message text and are merged
// field by field by Override. IsDone is driven by reactions only.
type Request struct {
	ID               string     `json:"id"`
	Author           string     `json:"author"`
	ShortDescription string     `json:"shortDescription"`
	RequestDate      *time.Time `json:"requestDate"`
	IsDone           bool       `json:"isDone"`
	Extra            string     `json:"extra"`
}

// New parses block into a request for message id. The result may be invalid; check
// IsValid before tracking it.
func New(id, block string, done bool) *Request {
	f := ParseFields(block)
	return &Request{
		ID:               id,
		Author:           f.Author,
		ShortDescription: f.ShortDescription,
		RequestDate:      f.RequestDate,
		IsDone:           done,
		Extra:            f.Extra,
	}
}

// IsValid reports whether the request has both an author and a description.
func (r *Request) IsValid() bool {
	return r.Author != "" && r.ShortDescription != ""
}

// Override merges a newer block into r. A field is replaced only when the new block
// yields a non-empty value for it. IsDone is left alone.
func (r *Request) Override(block string) {
	f := ParseFields(block)
	if f.Author != "" {
		r.Author = f.Author
	}
	if f.ShortDescription != "" {
		r.ShortDescription = f.ShortDescription
	}
	if f.RequestDate != nil {
		r.RequestDate = f.RequestDate
	}
	if f.Extra != "" {
		r.Extra = f.Extra
	}
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	c := *r
	if r.RequestDate != nil {
		d := *r.RequestDate
		c.RequestDate = &d
	}
	return &c
}

// ShortDate formats the request date as 02-Jan-06, or "Unknown" when absent.
func (r *Request) ShortDate() string {
	if r.RequestDate == nil {
		return "Unknown"
	}
	return r.RequestDate.Format("02-Jan-06")
}

// String renders a one-line summary used in logs.
func (r *Request) String() string {
	var b strings.Builder
	b.WriteString("ID: ")
	b.WriteString(r.ID)
	b.WriteString(" | User: ")
	b.WriteString(r.Author)
	b.WriteString(" | Request: ")
	b.WriteString(r.ShortDescription)
	b.WriteString(" | Date: ")
	b.WriteString(r.ShortDate())
	if r.IsDone {
		b.WriteString(" | ")
		b.WriteString(DoneReaction)
	}
	return b.String()
}
