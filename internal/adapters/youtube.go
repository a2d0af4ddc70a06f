package adapters

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/httpclient"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

const (
	youtubeOEmbedEndpoint = "https://www.youtube.com/oembed"
	youtubeCaptionsURL    = "https://video.google.com/timedtext"
)

// YouTubeAdapter ingests videos through their caption track. Videos
// without captions cannot be ingested; that is a terminal content error
// with an explicit fallback, not something to retry.
type YouTubeAdapter struct {
	baseAdapter
	client *httpclient.Client
}

// NewYouTubeAdapter creates the youtube provider adapter
func NewYouTubeAdapter(deps Deps, client *httpclient.Client) *YouTubeAdapter {
	return &YouTubeAdapter{baseAdapter: newBase(deps), client: client}
}

func (a *YouTubeAdapter) Provider() models.Provider { return models.ProviderYouTube }

func (a *YouTubeAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepFetching.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *YouTubeAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepFetching:
		return a.fetch(ctx, source, payload)
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("youtube adapter does not perform step %s", step)
	}
}

// timedTextDoc is the caption track XML shape
type timedTextDoc struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Start string `xml:"start,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func (a *YouTubeAdapter) fetch(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	videoID, err := extractVideoID(source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "could not extract a video id from the URL").WithCause(err)
	}
	payload.Metadata["video_id"] = videoID

	// Title via oEmbed; failure here is non-fatal, captions are the content
	oembedURL := fmt.Sprintf("%s?url=%s&format=json", youtubeOEmbedEndpoint, url.QueryEscape(source.URL))
	if status, body, err := a.client.Get(ctx, oembedURL); err == nil && status == http.StatusOK {
		var meta struct {
			Title      string `json:"title"`
			AuthorName string `json:"author_name"`
		}
		if json.Unmarshal(body, &meta) == nil {
			payload.Title = meta.Title
			if meta.AuthorName != "" {
				payload.Metadata["channel"] = meta.AuthorName
			}
		}
	}

	captionsURL := fmt.Sprintf("%s?lang=en&v=%s", youtubeCaptionsURL, url.QueryEscape(videoID))
	status, body, err := a.client.Get(ctx, captionsURL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "failed to fetch the caption track").WithCause(err)
	}
	if status == http.StatusTooManyRequests {
		return models.NewStepFailure(models.ErrCodeRateLimited, "YouTube rate-limited the request; the job will retry with backoff").
			WithHTTPStatus(status)
	}
	if status >= 400 || len(strings.TrimSpace(string(body))) == 0 {
		return models.NewStepFailure(models.ErrCodeYouTubeTranscriptUnavailable,
			"this video has no accessible captions; paste the transcript and upload it as a file instead").
			WithHTTPStatus(status)
	}

	payload.HTML = string(body)
	return nil
}

func (a *YouTubeAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	var doc timedTextDoc
	if err := xml.Unmarshal([]byte(payload.HTML), &doc); err != nil {
		return models.NewStepFailure(models.ErrCodeYouTubeTranscriptUnavailable,
			"caption track could not be parsed; paste the transcript and upload it as a file instead").WithCause(err)
	}

	var b strings.Builder
	for _, t := range doc.Texts {
		line := strings.TrimSpace(decodeEntities(t.Body))
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	transcript := strings.TrimSpace(b.String())
	if transcript == "" {
		return models.NewStepFailure(models.ErrCodeYouTubeTranscriptUnavailable,
			"caption track was empty; paste the transcript and upload it as a file instead")
	}

	title := payload.Title
	if title == "" {
		title = "YouTube video"
	}
	payload.Markdown = fmt.Sprintf("# %s\n\n%s", title, transcript)
	payload.Text = transcript
	return a.persistDocument(ctx, source, payload)
}

// extractVideoID pulls the video id from watch, share and shorts URLs
func extractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id != "" {
			return id, nil
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if id := u.Query().Get("v"); id != "" {
			return id, nil
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				if id != "" {
					return id, nil
				}
			}
		}
	}

	return "", fmt.Errorf("no video id in %s", rawURL)
}

func decodeEntities(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
	)
	return replacer.Replace(s)
}
