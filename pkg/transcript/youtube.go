package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/vidrag/internal/models"
	"golang.org/x/time/rate"
)

type YouTubeConfig struct {
	BaseURL   string
	Languages []string // preferred manual tracks, in order
	RateLimit float64  // requests per second
	Timeout   time.Duration
	UserAgent string
}

// YouTubeSource reads caption tracks advertised on a video's watch page.
type YouTubeSource struct {
	config  YouTubeConfig
	client  *http.Client
	limiter *rate.Limiter
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

func NewYouTubeSource(config YouTubeConfig) *YouTubeSource {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.youtube.com"
	}
	if len(config.Languages) == 0 {
		config.Languages = []string{"en", "en-US", "en-GB"}
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; vidrag/1.0)"
	}

	return &YouTubeSource{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func (s *YouTubeSource) Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	page := fmt.Sprintf("%s/watch?v=%s", strings.TrimRight(s.config.BaseURL, "/"), url.QueryEscape(videoID))

	resp, err := s.get(ctx, page)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watch page: %w", err)
	}

	tracks := findCaptionTracks(doc)
	track, ok := chooseTrack(tracks, s.config.Languages)
	if !ok {
		return nil, fmt.Errorf("%w: no caption tracks for %s", ErrNotFound, videoID)
	}

	trackURL, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caption track URL: %w", err)
	}

	resp, err = s.get(ctx, trackURL.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	segs, err := parseTimedText(resp.Body)
	if err != nil {
		return nil, err
	}
	return Normalize(segs)
}

func (s *YouTubeSource) get(ctx context.Context, target string) (*http.Response, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, target)
	}
	return resp, nil
}

// findCaptionTracks looks through the page scripts for the player
// response's captionTracks array.
func findCaptionTracks(doc *goquery.Document) []captionTrack {
	var tracks []captionTrack
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		body := sel.Text()
		i := strings.Index(body, `"captionTracks":`)
		if i < 0 {
			return true
		}
		raw, ok := jsonArrayAt(body, i+len(`"captionTracks":`))
		if !ok {
			return true
		}
		if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
			tracks = nil
			return true
		}
		return false
	})
	return tracks
}

// jsonArrayAt returns the JSON array starting at the first '[' at or after
// from, matched with string and escape awareness.
func jsonArrayAt(s string, from int) (string, bool) {
	start := strings.IndexByte(s[from:], '[')
	if start < 0 {
		return "", false
	}
	start += from

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// chooseTrack prefers manual tracks in the given languages, then an
// auto-generated English track, then whatever comes first.
func chooseTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, t := range tracks {
		if t.Kind == "asr" && strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return tracks[0], true
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(r io.Reader) ([]map[string]any, error) {
	var tt timedText
	if err := xml.NewDecoder(r).Decode(&tt); err != nil {
		return nil, fmt.Errorf("failed to parse timed text: %w", err)
	}

	segs := make([]map[string]any, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		seg := map[string]any{
			"text":  strings.Join(strings.Fields(html.UnescapeString(t.Body)), " "),
			"start": t.Start,
		}
		// The last cue of a track often has no dur attribute.
		if t.Dur != "" {
			seg["duration"] = t.Dur
		}
		segs = append(segs, seg)
	}
	return segs, nil
}
