package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nocturnefm/nocturne/util"
)

// ResolutionError reasons.
const (
	ResolutionMalformedHandle = "malformed_handle"
	ResolutionUnreachable     = "unreachable"
	ResolutionStatus          = "http_status"
	ResolutionInvalidDocument = "invalid_document"
)

// WebfingerLink is one entry of a JRD resource descriptor.
type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// WebfingerResponse is the JRD document returned by a webfinger lookup.
type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebfingerLink `json:"links"`
}

// CleanAcct splits and validates a "user@domain" account handle. A
// leading "acct:" prefix and "@" are tolerated.
func CleanAcct(handle string) (username, domain string, err error) {
	handle = strings.TrimPrefix(handle, "acct:")
	handle = strings.TrimPrefix(handle, "@")

	parts := strings.Split(handle, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &ResolutionError{Reason: ResolutionMalformedHandle}
	}
	return parts[0], parts[1], nil
}

// ResolveAccount maps an account handle to its canonical actor URL via
// the domain's well-known webfinger endpoint. The discovery lookup is
// unauthenticated per protocol convention.
func (c *Client) ResolveAccount(handle string) (string, error) {
	username, domain, err := CleanAcct(handle)
	if err != nil {
		return "", err
	}

	lookup := url.URL{
		Scheme:   c.scheme,
		Host:     domain,
		Path:     "/.well-known/webfinger",
		RawQuery: url.Values{"resource": []string{fmt.Sprintf("acct:%s@%s", username, domain)}}.Encode(),
	}

	req, err := http.NewRequest("GET", lookup.String(), nil)
	if err != nil {
		return "", &ResolutionError{Reason: ResolutionUnreachable, Err: err}
	}
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &ResolutionError{Reason: ResolutionUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ResolutionError{Reason: ResolutionStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ResolutionError{Reason: ResolutionInvalidDocument, Err: err}
	}

	var finger WebfingerResponse
	if err := json.Unmarshal(body, &finger); err != nil {
		return "", &ResolutionError{Reason: ResolutionInvalidDocument, Err: err}
	}

	actorURL := actorURLFromLinks(finger.Links)
	if actorURL == "" {
		return "", &ResolutionError{Reason: ResolutionInvalidDocument, Err: fmt.Errorf("no actor link in descriptor")}
	}

	return actorURL, nil
}

func actorURLFromLinks(links []WebfingerLink) string {
	for _, link := range links {
		if link.Rel == "self" && link.Type == "application/activity+json" {
			return link.Href
		}
	}
	// Fall back to any self link when the peer omits the media type
	for _, link := range links {
		if link.Rel == "self" && link.Href != "" {
			return link.Href
		}
	}
	return ""
}
