package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/versekeeper/versekeeper/pkg/contracts"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

var (
	_ contracts.ScriptureProvider = (*ESVProvider)(nil)
	_ contracts.ScriptureProvider = (*BibleAPIProvider)(nil)
	_ contracts.ScriptureProvider = (*BibleGatewayProvider)(nil)
)

// httpScripture is the shared half of the scripture-only providers.
type httpScripture struct {
	base
	defaultEndpoint string
	client          *http.Client
}

func newHTTPScripture(desc models.ProviderDescriptor, endpoint string) httpScripture {
	return httpScripture{
		base:            newBase(desc),
		defaultEndpoint: endpoint,
		client:          &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *httpScripture) Configure(cfg models.ProviderConfig) bool {
	return s.applyConfig(cfg, nil)
}

func (s *httpScripture) endpoint(cfg models.ProviderConfig) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/")
	}
	return s.defaultEndpoint
}

// get issues a GET and returns the body of a 200 response.
func (s *httpScripture) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", s.desc.ID, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", s.desc.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", s.desc.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", s.desc.ID, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// notReady is the result every scripture provider returns before Configure succeeds.
func (s *httpScripture) notReady() result.Result[[]models.ScriptureVerse] {
	return result.Errorf[[]models.ScriptureVerse](result.KindConfiguration, "%s: not configured: %s", s.desc.ID, s.InitializationError())
}

func transportFailure[T any](err error) result.Result[T] {
	return result.Fail[T](result.KindTransport, err.Error(), err)
}

// ── ESV API ─────────────────────────────────────────────────

// ESVProvider reads passages from api.esv.org. Only the ESV translation is served.
type ESVProvider struct {
	httpScripture
}

// NewESV creates the ESV API provider.
func NewESV(priority int) *ESVProvider {
	return &ESVProvider{newHTTPScripture(models.ProviderDescriptor{
		ID:          "esv",
		Name:        "ESV API",
		ServiceType: models.ServiceESV,
		Priority:    priority,
	}, "https://api.esv.org")}
}

var esvVerseMarker = regexp.MustCompile(`\[(\d+)\]`)

type esvResponse struct {
	Canonical string   `json:"canonical"`
	Passages  []string `json:"passages"`
	Detail    string   `json:"detail"`
}

func (p *ESVProvider) FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse] {
	if !p.IsInitialized() {
		return p.notReady()
	}
	if translation != "" && !strings.EqualFold(translation, "ESV") {
		return result.Errorf[[]models.ScriptureVerse](result.KindInvalidInput, "esv: translation %q not supported", translation)
	}
	passage, err := p.passage(ctx, ref.Normalize().String())
	if err != nil {
		return transportFailure[[]models.ScriptureVerse](err)
	}
	return ParseMarkedVerses(passage)
}

func (p *ESVProvider) passage(ctx context.Context, query string) (string, error) {
	cfg := p.config()
	q := url.Values{}
	q.Set("q", query)
	q.Set("include-passage-references", "false")
	q.Set("include-verse-numbers", "true")
	q.Set("include-first-verse-numbers", "true")
	q.Set("include-footnotes", "false")
	q.Set("include-headings", "false")
	q.Set("include-short-copyright", "false")

	body, err := p.get(ctx, p.endpoint(cfg)+"/v3/passage/text/?"+q.Encode(), http.Header{
		"Authorization": []string{"Token " + cfg.APIKey},
	})
	if err != nil {
		return "", err
	}

	var resp esvResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("esv: decode response: %w", err)
	}
	if resp.Detail != "" {
		return "", fmt.Errorf("esv: %s", resp.Detail)
	}
	return strings.Join(resp.Passages, "\n"), nil
}

func (p *ESVProvider) Test(ctx context.Context) bool {
	if !p.IsInitialized() {
		return false
	}
	_, err := p.passage(ctx, "John 11:35")
	return err == nil
}

// ParseMarkedVerses splits text carrying "[12] ... [13] ..." verse markers.
// Text before the first marker is ignored, as are markers with blank text.
func ParseMarkedVerses(text string) result.Result[[]models.ScriptureVerse] {
	locs := esvVerseMarker.FindAllStringSubmatchIndex(text, -1)
	verses := make([]models.ScriptureVerse, 0, len(locs))
	for i, loc := range locs {
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.Join(strings.Fields(text[loc[1]:end]), " ")
		if n <= 0 || body == "" {
			continue
		}
		verses = append(verses, models.ScriptureVerse{Number: n, Text: body})
	}
	return finishVerses(verses)
}

// ── bible-api.com ───────────────────────────────────────────

// BibleAPIProvider reads public-domain translations from bible-api.com.
// No credential is needed.
type BibleAPIProvider struct {
	httpScripture
}

// NewBibleAPI creates the bible-api.com provider.
func NewBibleAPI(priority int) *BibleAPIProvider {
	return &BibleAPIProvider{newHTTPScripture(models.ProviderDescriptor{
		ID:           "bible-api",
		Name:         "bible-api.com",
		ServiceType:  models.ServiceBibleAPI,
		DefaultModel: "web",
		Priority:     priority,
	}, "https://bible-api.com")}
}

type bibleAPIResponse struct {
	Reference string `json:"reference"`
	Verses    []struct {
		BookName string `json:"book_name"`
		Chapter  int    `json:"chapter"`
		Verse    int    `json:"verse"`
		Text     string `json:"text"`
	} `json:"verses"`
	Error string `json:"error"`
}

func (p *BibleAPIProvider) FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse] {
	if !p.IsInitialized() {
		return p.notReady()
	}
	cfg := p.config()
	if translation == "" {
		// Model doubles as the default translation for this provider.
		translation = cfg.Model
	}

	resp, err := p.lookup(ctx, cfg, ref.Normalize().String(), translation)
	if err != nil {
		return transportFailure[[]models.ScriptureVerse](err)
	}

	verses := make([]models.ScriptureVerse, 0, len(resp.Verses))
	for _, v := range resp.Verses {
		text := strings.Join(strings.Fields(v.Text), " ")
		if v.Verse <= 0 || text == "" {
			continue
		}
		verses = append(verses, models.ScriptureVerse{Number: v.Verse, Text: text})
	}
	return finishVerses(verses)
}

func (p *BibleAPIProvider) lookup(ctx context.Context, cfg models.ProviderConfig, ref, translation string) (*bibleAPIResponse, error) {
	u := p.endpoint(cfg) + "/" + url.PathEscape(ref)
	if translation != "" {
		u += "?translation=" + url.QueryEscape(strings.ToLower(translation))
	}
	body, err := p.get(ctx, u, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, err
	}

	var resp bibleAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bible-api: decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("bible-api: %s", resp.Error)
	}
	return &resp, nil
}

func (p *BibleAPIProvider) Test(ctx context.Context) bool {
	if !p.IsInitialized() {
		return false
	}
	_, err := p.lookup(ctx, p.config(), "John 3:16", "")
	return err == nil
}

// ── BibleGateway ────────────────────────────────────────────

// BibleGatewayProvider scrapes passage pages from biblegateway.com, which
// serves most modern translations.
type BibleGatewayProvider struct {
	httpScripture
}

// NewBibleGateway creates the BibleGateway HTML provider.
func NewBibleGateway(priority int) *BibleGatewayProvider {
	return &BibleGatewayProvider{newHTTPScripture(models.ProviderDescriptor{
		ID:           "biblegateway",
		Name:         "BibleGateway",
		ServiceType:  models.ServiceBibleGateway,
		DefaultModel: "ESV",
		Priority:     priority,
	}, "https://www.biblegateway.com")}
}

func (p *BibleGatewayProvider) FetchScripture(ctx context.Context, ref models.VerseRef, translation string) result.Result[[]models.ScriptureVerse] {
	if !p.IsInitialized() {
		return p.notReady()
	}
	cfg := p.config()
	if translation == "" {
		translation = cfg.Model
	}

	body, err := p.page(ctx, cfg, ref.Normalize().String(), translation)
	if err != nil {
		return transportFailure[[]models.ScriptureVerse](err)
	}
	return ParsePassageHTML(strings.NewReader(string(body)))
}

func (p *BibleGatewayProvider) page(ctx context.Context, cfg models.ProviderConfig, ref, translation string) ([]byte, error) {
	q := url.Values{}
	q.Set("search", ref)
	q.Set("version", strings.ToUpper(translation))
	return p.get(ctx, p.endpoint(cfg)+"/passage/?"+q.Encode(), http.Header{
		"User-Agent": []string{"versekeeper/1.0"},
		"Accept":     []string{"text/html"},
	})
}

func (p *BibleGatewayProvider) Test(ctx context.Context) bool {
	if !p.IsInitialized() {
		return false
	}
	cfg := p.config()
	_, err := p.page(ctx, cfg, "John 3:16", cfg.Model)
	return err == nil
}

// Verse spans carry a class such as "text Rom-12-12"; the trailing number is the verse.
var gatewayVerseClass = regexp.MustCompile(`\b[\w]+-\d+-(\d+)\b`)

// ParsePassageHTML extracts verses from a BibleGateway passage page. Poetry
// splits one verse over several spans; those are joined back together.
func ParsePassageHTML(r io.Reader) result.Result[[]models.ScriptureVerse] {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return result.Fail[[]models.ScriptureVerse](result.KindParse, "parse passage html", err)
	}

	passage := doc.Find(".passage-text").First()
	if passage.Length() == 0 {
		return result.Errorf[[]models.ScriptureVerse](result.KindParse, "biblegateway: passage not found in page")
	}
	passage.Find("sup.versenum, sup.footnote, sup.crossreference, span.chapternum, div.footnotes, div.crossrefs, h3, h4").Remove()

	var order []int
	texts := make(map[int][]string)
	passage.Find("span.text").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		m := gatewayVerseClass.FindStringSubmatch(class)
		if m == nil {
			return
		}
		n, _ := strconv.Atoi(m[1])
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if n <= 0 || text == "" {
			return
		}
		if _, seen := texts[n]; !seen {
			order = append(order, n)
		}
		texts[n] = append(texts[n], text)
	})

	verses := make([]models.ScriptureVerse, 0, len(order))
	for _, n := range order {
		verses = append(verses, models.ScriptureVerse{Number: n, Text: strings.Join(texts[n], " ")})
	}
	return finishVerses(verses)
}
