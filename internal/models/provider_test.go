package models

import "testing"

func TestClassifyReference(t *testing.T) {
	tests := []struct {
		name     string
		ref      Reference
		expected Provider
	}{
		{
			name:     "YouTube watch URL",
			ref:      Reference{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
			expected: ProviderYouTube,
		},
		{
			name:     "YouTube short link",
			ref:      Reference{URL: "https://youtu.be/dQw4w9WgXcQ"},
			expected: ProviderYouTube,
		},
		{
			name:     "YouTube mobile host",
			ref:      Reference{URL: "https://m.youtube.com/watch?v=abc123def45"},
			expected: ProviderYouTube,
		},
		{
			name:     "X post",
			ref:      Reference{URL: "https://x.com/someone/status/123456"},
			expected: ProviderX,
		},
		{
			name:     "Legacy twitter host",
			ref:      Reference{URL: "https://twitter.com/someone/status/123456"},
			expected: ProviderX,
		},
		{
			name:     "LinkedIn profile",
			ref:      Reference{URL: "https://www.linkedin.com/in/someone"},
			expected: ProviderLinkedIn,
		},
		{
			name:     "LinkedIn pulse article",
			ref:      Reference{URL: "https://www.linkedin.com/pulse/some-article"},
			expected: ProviderLinkedIn,
		},
		{
			name:     "RSS extension",
			ref:      Reference{URL: "https://example.com/show.rss"},
			expected: ProviderPodcast,
		},
		{
			name:     "XML feed extension",
			ref:      Reference{URL: "https://example.com/podcast/feed.xml"},
			expected: ProviderPodcast,
		},
		{
			name:     "Feed path suffix",
			ref:      Reference{URL: "https://blog.example.com/feed"},
			expected: ProviderPodcast,
		},
		{
			name:     "Known podcast host",
			ref:      Reference{URL: "https://podcasts.apple.com/us/podcast/something/id12345"},
			expected: ProviderPodcast,
		},
		{
			name:     "Plain web page",
			ref:      Reference{URL: "https://example.com/articles/how-to"},
			expected: ProviderWeb,
		},
		{
			name:     "Uploaded file wins over URL",
			ref:      Reference{URL: "https://youtube.com/watch?v=x", FileName: "notes.pdf", FileKey: "upload/t1/abc.pdf"},
			expected: ProviderFile,
		},
		{
			name:     "File key only",
			ref:      Reference{FileKey: "upload/t1/abc.md"},
			expected: ProviderFile,
		},
		{
			name:     "Unparseable URL falls through to web",
			ref:      Reference{URL: "::::not a url"},
			expected: ProviderWeb,
		},
		{
			name:     "Empty reference",
			ref:      Reference{},
			expected: ProviderWeb,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyReference(tt.ref)
			if got != tt.expected {
				t.Errorf("ClassifyReference(%+v) = %s, want %s", tt.ref, got, tt.expected)
			}
		})
	}
}

func TestClassifyReferenceIsStableOnSource(t *testing.T) {
	src := NewSource("twin-1", Reference{URL: "https://youtu.be/abc"})
	if src.Provider != ProviderYouTube {
		t.Fatalf("expected provider youtube, got %s", src.Provider)
	}

	// Retry rebuilds from the persisted reference and must classify the same
	if got := ClassifyReference(src.Reference()); got != src.Provider {
		t.Errorf("reclassified provider %s differs from stored %s", got, src.Provider)
	}
}
