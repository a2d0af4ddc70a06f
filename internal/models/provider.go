package models

import (
	"net/url"
	"path"
	"strings"
)

// Provider identifies the external content source a knowledge source was
// ingested from. The set is closed - one adapter exists per provider.
type Provider string

const (
	ProviderYouTube  Provider = "youtube"
	ProviderX        Provider = "x"
	ProviderLinkedIn Provider = "linkedin"
	ProviderPodcast  Provider = "podcast"
	ProviderWeb      Provider = "web"
	ProviderFile     Provider = "file"
)

// IsValid checks if the Provider is a known, valid value
func (p Provider) IsValid() bool {
	switch p {
	case ProviderYouTube, ProviderX, ProviderLinkedIn, ProviderPodcast, ProviderWeb, ProviderFile:
		return true
	}
	return false
}

// String returns the string representation of the Provider
func (p Provider) String() string {
	return string(p)
}

// AllProviders returns a slice of all valid Provider values
func AllProviders() []Provider {
	return []Provider{
		ProviderYouTube,
		ProviderX,
		ProviderLinkedIn,
		ProviderPodcast,
		ProviderWeb,
		ProviderFile,
	}
}

// Reference is the original input a source was created from: either a URL
// or an uploaded file descriptor. Exactly one of URL/FileName is expected
// to be set; when both are present the file wins.
type Reference struct {
	URL      string `json:"url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileKey  string `json:"file_key,omitempty"` // blob storage key for uploaded content
}

// podcastHosts are feed hosts that classify as podcast regardless of path.
var podcastHosts = []string{
	"anchor.fm",
	"feeds.megaphone.fm",
	"feeds.simplecast.com",
	"feeds.buzzsprout.com",
	"feeds.libsyn.com",
	"podcasts.apple.com",
	"feeds.transistor.fm",
}

// ClassifyReference maps a reference to its provider. The function is pure
// and total: no network calls, and every input classifies to something
// (unparseable URLs fall through to web). Rules apply in priority order:
// file, youtube, x, linkedin, podcast, web.
func ClassifyReference(ref Reference) Provider {
	if ref.FileName != "" || ref.FileKey != "" {
		return ProviderFile
	}

	u, err := url.Parse(strings.TrimSpace(ref.URL))
	if err != nil || u.Host == "" {
		return ProviderWeb
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return ProviderYouTube
	case host == "x.com" || host == "twitter.com" || strings.HasSuffix(host, ".twitter.com"):
		return ProviderX
	case host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com"):
		return ProviderLinkedIn
	}

	if isFeedReference(host, u.Path) {
		return ProviderPodcast
	}

	return ProviderWeb
}

// isFeedReference matches known feed patterns: .rss/.xml extensions,
// /feed or /rss path suffixes, and well-known podcast hosts.
func isFeedReference(host, urlPath string) bool {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == ".rss" || ext == ".xml" {
		return true
	}

	trimmed := strings.TrimSuffix(strings.ToLower(urlPath), "/")
	if strings.HasSuffix(trimmed, "/feed") || strings.HasSuffix(trimmed, "/rss") {
		return true
	}

	for _, h := range podcastHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}

	return false
}
