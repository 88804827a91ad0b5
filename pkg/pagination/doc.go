// Package pagination follows App Store Connect "next" links to
// assemble complete result sets.
//
// Pagination is strictly sequential by design: each page's URL comes
// from the previous response's links.next, so pages cannot be fetched
// in parallel. The page cap bounds adversarial or looping pagination;
// raise it per call when a result set is legitimately larger.
//
// Usage:
//
//	walker := pagination.NewWalker(ascClient)
//	items, err := walker.CollectAll(ctx, "/v1/apps/123/appStoreVersions", nil, 0)
//
// Failure semantics are all-or-nothing: if any page fails, the error
// propagates and partially collected items are discarded.
package pagination
