// Package pagination walks paginated App Store Connect endpoints,
// following "next" cursors until exhaustion or a safety cap.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/client"
	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/logging"
)

// DefaultMaxPages is the safety cap applied when a caller passes a
// non-positive maxPages. It guards against misbehaving pagination, not
// an expected result-set size; callers with legitimately larger sets
// should raise it.
const DefaultMaxPages = 10

// Requester is the transport surface the walker needs. Satisfied by
// *client.Client.
type Requester interface {
	Send(ctx context.Context, method, path string, body any) (*client.Response, error)
}

// Walker materializes full result sets from paginated endpoints.
type Walker struct {
	requester Requester
	logger    zerolog.Logger
}

// NewWalker creates a pagination walker over the given transport.
func NewWalker(requester Requester) *Walker {
	return &Walker{
		requester: requester,
		logger:    logging.NewLogger("asc-pagination"),
	}
}

// CollectAll issues the first request with the caller's query
// parameters and follows "next" cursors until none remains or maxPages
// is reached, returning every item in arrival order. Pages are fetched
// strictly sequentially: each request depends on the previous page's
// cursor. Any page failure propagates and discards pages already
// collected; callers never see a silently truncated result.
func (w *Walker) CollectAll(ctx context.Context, path string, params url.Values, maxPages int) ([]json.RawMessage, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	target := path
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target = path + sep + params.Encode()
	}

	var items []json.RawMessage
	seen := map[string]bool{target: true}

	for page := 1; ; page++ {
		resp, err := w.requester.Send(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		pageItems, err := decodeItems(resp.Data)
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", page, err)
		}
		items = append(items, pageItems...)

		next := resp.Links.Next
		if next == "" {
			w.logger.Debug().
				Str("path", path).
				Int("pages", page).
				Int("items", len(items)).
				Msg("Pagination complete")
			return items, nil
		}

		if page >= maxPages {
			w.logger.Warn().
				Str("path", path).
				Int("max_pages", maxPages).
				Msg("Pagination stopped at page cap")
			return items, nil
		}

		// A repeated cursor means the service is looping; following it
		// would re-request a page already consumed.
		if seen[next] {
			return nil, fmt.Errorf("pagination cursor repeated at page %d: %s", page, next)
		}
		seen[next] = true
		target = next
	}
}

// decodeItems splits the envelope data into individual raw items. A
// single-object payload becomes a one-item sequence.
func decodeItems(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	return []json.RawMessage{data}, nil
}
