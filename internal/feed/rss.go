package feed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/text"
)

// RSS fetches and parses RSS 2.0 and Atom documents.
type RSS struct {
	client *http.Client
	log    *logger.Logger
}

// NewRSS creates the RSS source. client defaults to a 10s-timeout client.
func NewRSS(client *http.Client, log *logger.Logger) *RSS {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RSS{client: client, log: log}
}

// Fetch downloads the provider URL and parses it.
func (r *RSS) Fetch(ctx context.Context, provider *domain.FeedProvider) (*FetchResult, error) {
	if provider.URL == "" {
		return nil, errors.New("rss: provider url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("rss: build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss: fetch %s: %w", provider.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rss: read %s: %w", provider.URL, err)
	}

	payload, _ := json.Marshal(map[string]string{"url": provider.URL})
	result := &FetchResult{
		Payload:    string(payload),
		Response:   string(body),
		StatusCode: resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("rss: fetch %s: status %d", provider.URL, resp.StatusCode)
	}

	items, err := Parse(body)
	if err != nil {
		return result, err
	}
	result.Items = items
	return result, nil
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Text string `xml:",chardata"`
}

type feedEntry struct {
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	Content     string     `xml:"content"`
	Links       []atomLink `xml:"link"`
}

type feedRoot struct {
	XMLName xml.Name
	Channel struct {
		Items []feedEntry `xml:"item"`
	} `xml:"channel"`
	Entries []feedEntry `xml:"entry"`
}

// Parse decodes an RSS channel or Atom feed into items. The Atom content
// element wins over the RSS description when both are present.
func Parse(raw []byte) ([]Item, error) {
	var root feedRoot
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("rss: invalid xml: %w", err)
	}

	var entries []feedEntry
	switch root.XMLName.Local {
	case "rss":
		entries = root.Channel.Items
	case "feed":
		entries = root.Entries
	default:
		return nil, fmt.Errorf("rss: unsupported document root %q", root.XMLName.Local)
	}

	converter := md.NewConverter("", true, nil)

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		description := entry.Content
		if description == "" {
			description = entry.Description
		}
		items = append(items, Item{
			Title:       decode(entry.Title),
			Description: renderDescription(converter, description),
			URL:         entryURL(entry.Links),
			Image:       firstImage(description),
		})
	}
	return items, nil
}

// renderDescription converts the entry HTML to markdown so structure
// survives into generation prompts. Falls back to tag stripping when the
// HTML does not convert.
func renderDescription(converter *md.Converter, s string) string {
	out, err := converter.ConvertString(s)
	if err != nil {
		return decode(s)
	}
	return strings.TrimSpace(out)
}

// firstImage extracts the first image reference from the entry HTML.
func firstImage(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// entryURL picks the entry link, preferring href attributes, and unwraps
// Google News redirect links to the destination URL.
func entryURL(links []atomLink) string {
	var link string
	for _, l := range links {
		if l.Href != "" {
			link = l.Href
			break
		}
		if text := strings.TrimSpace(l.Text); text != "" {
			link = text
			break
		}
	}

	if strings.HasPrefix(link, "https://www.google.com/url") {
		if parsed, err := url.Parse(link); err == nil {
			if target := parsed.Query().Get("url"); target != "" {
				link = target
			}
		}
	}
	return link
}

// decode unescapes HTML entities and strips markup left inside titles and
// descriptions.
func decode(s string) string {
	return strings.TrimSpace(text.StripTags(html.UnescapeString(s)))
}
