package client

import (
	"encoding/json"
	"fmt"
)

// Response is the decoded App Store Connect resource envelope. The
// payload under Data is kept raw; consumers decode it into their own
// shapes.
type Response struct {
	// Data is the primary resource or resource list.
	Data json.RawMessage `json:"data"`

	// Included carries side-loaded related resources, when requested.
	Included json.RawMessage `json:"included,omitempty"`

	// Links holds the pagination locators for list responses.
	Links Links `json:"links"`

	// Meta carries paging totals and other response metadata.
	Meta json.RawMessage `json:"meta,omitempty"`

	// Errors is populated on rejection responses.
	Errors []ErrorDetail `json:"errors,omitempty"`
}

// Links is the envelope links object. Next is the opaque cursor for
// the following page; it is forwarded verbatim, never interpreted.
type Links struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
}

// ErrorDetail is one structured error from the service.
type ErrorDetail struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (d ErrorDetail) String() string {
	if d.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", d.Title, d.Detail, d.Code)
	}
	return fmt.Sprintf("%s (%s)", d.Title, d.Code)
}

// decodeResponse parses an envelope body. An empty body (204) yields
// an empty Response.
func decodeResponse(body []byte) (*Response, error) {
	resp := &Response{}
	if len(body) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	return resp, nil
}
