// Package pagination discovers every item of a paginated listing.
//
// A listing root such as https://www.ximalaya.com/waiyu/14359664 is walked
// page by page (<root>/p1/, <root>/p2/, ...). Each page is parsed for item
// anchors and for the "next page" control; the walk stops on the first page
// that lacks the control. Pages are fetched strictly one after another since
// the decision to continue depends on the previous page.
//
// Example usage:
//
//	fetcher := pagination.NewHTTPFetcher(siteClient)
//	lister := pagination.NewLister(fetcher, pagination.DefaultSelectors())
//	items, err := lister.List(ctx, "https://www.ximalaya.com/waiyu/14359664")
//
// The lister:
//   - Keeps items in page order, then document order within a page
//   - Does not deduplicate repeated anchors
//   - Continues past empty pages as long as the control is present
//   - Fails the walk on an anchor whose trailing segment is not an integer
//
// There is no page ceiling: a listing that always advertises a next page is
// walked until the context is cancelled.
package pagination
