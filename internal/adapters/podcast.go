package adapters

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/httpclient"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

const maxEpisodes = 50

// PodcastAdapter ingests RSS podcast feeds: show notes and episode
// descriptions, not audio transcription.
type PodcastAdapter struct {
	baseAdapter
	client *httpclient.Client
}

// NewPodcastAdapter creates the podcast provider adapter
func NewPodcastAdapter(deps Deps, client *httpclient.Client) *PodcastAdapter {
	return &PodcastAdapter{baseAdapter: newBase(deps), client: client}
}

func (a *PodcastAdapter) Provider() models.Provider { return models.ProviderPodcast }

func (a *PodcastAdapter) Performs(step models.Step) bool {
	return step.Index() >= models.StepFetching.Index() && step.Index() <= models.StepIndexed.Index()
}

func (a *PodcastAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if handled, err := a.executeShared(ctx, source, step, payload); handled {
		return err
	}

	switch step {
	case models.StepFetching:
		return a.fetch(ctx, source, payload)
	case models.StepParsed:
		return a.parse(ctx, source, payload)
	default:
		return fmt.Errorf("podcast adapter does not perform step %s", step)
	}
}

// rssFeed is the subset of RSS 2.0 the adapter reads
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title       string `xml:"title"`
		Description string `xml:"description"`
		Items       []struct {
			Title       string `xml:"title"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
			Summary     string `xml:"summary"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (a *PodcastAdapter) fetch(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	status, body, err := a.client.Get(ctx, source.URL)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeFetchFailed, "failed to fetch the feed").WithCause(err)
	}
	if status == http.StatusTooManyRequests {
		return models.NewStepFailure(models.ErrCodeRateLimited, "feed host rate-limited the fetch; the job will retry with backoff").
			WithHTTPStatus(status)
	}
	if status >= 400 {
		return models.NewStepFailure(models.ErrCodeFetchFailed, fmt.Sprintf("feed host returned HTTP %d", status)).
			WithHTTPStatus(status)
	}

	payload.HTML = string(body)
	return nil
}

func (a *PodcastAdapter) parse(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	var feed rssFeed
	if err := xml.Unmarshal([]byte(payload.HTML), &feed); err != nil {
		return models.NewStepFailure(models.ErrCodePodcastFeedInvalid,
			"the URL does not point to a valid RSS feed; check the feed address with the podcast host").WithCause(err)
	}
	if len(feed.Channel.Items) == 0 {
		return models.NewStepFailure(models.ErrCodePodcastFeedInvalid,
			"the feed parsed but contains no episodes; check the feed address with the podcast host")
	}

	var b strings.Builder
	b.WriteString("# " + strings.TrimSpace(feed.Channel.Title) + "\n\n")
	if desc := strings.TrimSpace(feed.Channel.Description); desc != "" {
		b.WriteString(htmlToPlain(desc) + "\n\n")
	}

	count := len(feed.Channel.Items)
	if count > maxEpisodes {
		count = maxEpisodes
	}
	for _, item := range feed.Channel.Items[:count] {
		b.WriteString("## " + strings.TrimSpace(item.Title) + "\n\n")
		if item.PubDate != "" {
			b.WriteString("_" + strings.TrimSpace(item.PubDate) + "_\n\n")
		}
		desc := item.Description
		if desc == "" {
			desc = item.Summary
		}
		if desc = htmlToPlain(desc); desc != "" {
			b.WriteString(desc + "\n\n")
		}
	}

	payload.Markdown = b.String()
	payload.Title = strings.TrimSpace(feed.Channel.Title)
	payload.Metadata["episode_count"] = len(feed.Channel.Items)
	return a.persistDocument(ctx, source, payload)
}

// htmlToPlain strips the HTML fragments podcast hosts embed in
// descriptions.
func htmlToPlain(s string) string {
	return strings.TrimSpace(decodeEntities(stripTags(s)))
}
