package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nocturnefm/nocturne/util"
)

// Collection is the top-level summary of a paginated item sequence:
// total count plus a link to the first page, no item bodies.
type Collection struct {
	Context    interface{} `json:"@context,omitempty"`
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	TotalItems int         `json:"totalItems"`
	Actor      string      `json:"actor,omitempty"`
	Name       string      `json:"name,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	First      string      `json:"first"`
}

// CollectionPage is one bounded slice of the sequence with links to the
// adjacent pages when they exist.
type CollectionPage struct {
	Context interface{}       `json:"@context,omitempty"`
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	PartOf  string            `json:"partOf"`
	Items   []json.RawMessage `json:"items"`
	Next    string            `json:"next,omitempty"`
	Prev    string            `json:"prev,omitempty"`
}

// CollectionConfig drives the producer side. Items must already be in
// descending creation order; producer and consumer agree on that
// ordering so "scan until timestamp" early termination stays correct.
type CollectionConfig struct {
	ID       string
	Actor    string
	Name     string
	Summary  string
	Items    []json.RawMessage
	PageSize int
}

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"

// ServeCollection renders the top-level collection summary.
func ServeCollection(conf CollectionConfig) *Collection {
	return &Collection{
		Context:    activityStreamsContext,
		ID:         conf.ID,
		Type:       "Collection",
		TotalItems: len(conf.Items),
		Actor:      conf.Actor,
		Name:       conf.Name,
		Summary:    conf.Summary,
		First:      pageURL(conf.ID, 1),
	}
}

// ServePage renders page n of the collection. Pages are 1-based; page
// numbers below 1 fail with ErrInvalidPage (a bad request) and numbers
// past the last page with ErrEmptyPage (not found — never the first
// page).
func ServePage(conf CollectionConfig, page int) (*CollectionPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	size := conf.PageSize
	if size < 1 {
		size = 1
	}

	lastPage := (len(conf.Items) + size - 1) / size
	if lastPage == 0 {
		lastPage = 1
	}
	if page > lastPage {
		return nil, fmt.Errorf("%w: %d of %d", ErrEmptyPage, page, lastPage)
	}

	start := (page - 1) * size
	end := start + size
	if end > len(conf.Items) {
		end = len(conf.Items)
	}

	p := &CollectionPage{
		Context: activityStreamsContext,
		ID:      pageURL(conf.ID, page),
		Type:    "CollectionPage",
		PartOf:  conf.ID,
		Items:   conf.Items[start:end],
	}
	if page > 1 {
		p.Prev = pageURL(conf.ID, page-1)
	}
	if page < lastPage {
		p.Next = pageURL(conf.ID, page+1)
	}

	return p, nil
}

func pageURL(collectionID string, page int) string {
	return fmt.Sprintf("%s?page=%d", collectionID, page)
}

// PageWalker walks a remote collection one page per step. Each call to
// Next performs a single signed page fetch; callers may stop early at
// any point. Restarting requires a fresh walker.
type PageWalker struct {
	client  *Client
	nextURL string
}

// WalkPages starts a walker at the given first-page URL (usually a
// collection summary's "first" link).
func (c *Client) WalkPages(firstURL string) *PageWalker {
	return &PageWalker{client: c, nextURL: firstURL}
}

// Done reports whether the walker exhausted the collection.
func (w *PageWalker) Done() bool {
	return w.nextURL == ""
}

// Next fetches the next page and returns its items in the order
// received. Returns nil items once the collection is exhausted.
func (w *PageWalker) Next() ([]json.RawMessage, error) {
	if w.nextURL == "" {
		return nil, nil
	}

	page, err := w.client.fetchPage(w.nextURL)
	if err != nil {
		return nil, err
	}

	w.nextURL = page.Next
	return page.Items, nil
}

// FetchAllItems drains a remote collection starting at firstURL,
// yielding items in producer page order.
func (c *Client) FetchAllItems(firstURL string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	walker := c.WalkPages(firstURL)
	for !walker.Done() {
		pageItems, err := walker.Next()
		if err != nil {
			return items, err
		}
		items = append(items, pageItems...)
	}
	return items, nil
}

func (c *Client) fetchPage(pageURL string) (*CollectionPage, error) {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	if err := c.signAsSystemActor(req, nil); err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Reason: FetchStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	var page CollectionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	return &page, nil
}

// FetchCollection fetches and validates a remote collection summary.
func (c *Client) FetchCollection(collectionURL string) (*Collection, error) {
	req, err := http.NewRequest("GET", collectionURL, nil)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	if err := c.signAsSystemActor(req, nil); err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Reason: FetchStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	var collection Collection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	if collection.ID == "" || collection.First == "" {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: fmt.Errorf("collection missing required fields")}
	}

	return &collection, nil
}
