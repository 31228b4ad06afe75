// Package pagination walks Lizard's cursor based paginated endpoints.
//
// Lizard list endpoints return an envelope with a "next" link. The fetcher
// requests the first page with the merged query parameters, then follows each
// "next" URL verbatim with no additional parameters until it is empty.
// Pages are fetched strictly one after another, so records always arrive in
// server order.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(lizardClient, pagination.DefaultConfig())
//	pager := fetcher.Fetch(ctx, "https://demo.lizard.net/api/v3/timeseries/", params, creds)
//	for pager.Next() {
//		page := pager.Page()
//		// use page.Results
//	}
//	if err := pager.Err(); err != nil {
//		// pages already returned stay valid
//	}
//
// The pager:
//   - Checks the context between pages, never mid-page
//   - Resolves relative "next" links against the current page URL
//   - Fails with ErrPaginationCycle when a "next" link was already visited
//   - Accepts envelopes, bare arrays and single objects as page bodies
package pagination
