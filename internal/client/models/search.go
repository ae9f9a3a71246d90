package models

// Cursor addresses the position after the last user of a search page.
type Cursor struct {
	ID        string `json:"id" url:"id"`
	CreatedAt string `json:"createdAt" url:"createdAt"`
}

// SearchQuery is encoded into the query string of the user search endpoint.
// The embedded cursor is flattened into id/createdAt and omitted when nil.
type SearchQuery struct {
	Username string `url:"username"`
	PageSize int    `url:"pageSize,omitempty"`
	*Cursor `url:",omitempty"`
}

// SearchResult is one page of user search results.
type SearchResult struct {
	Users      []User  `json:"users"`
	NextCursor *Cursor `json:"nextCursor,omitempty"`
}
