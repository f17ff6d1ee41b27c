// Package fonts extracts font usage from fetched pages: stylesheet
// references, declared @font-face rules, per-family usage counts, and
// provider classification.
package fonts

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// Config bounds the analyzer's stylesheet fetching.
type Config struct {
	// MaxStylesheets caps how many external stylesheets are fetched per page.
	MaxStylesheets int
	// MaxStylesheetBytes drops stylesheet bodies larger than this.
	MaxStylesheetBytes int
}

const (
	defaultMaxStylesheets     = 20
	defaultMaxStylesheetBytes = 2 * 1024 * 1024
)

// Analyzer builds FontReports from fetched pages. External stylesheets are
// retrieved through the same Fetcher the page came from, so politeness and
// robots behavior stay uniform.
type Analyzer struct {
	cfg     Config
	fetcher inspector.Fetcher
	logger  *zap.Logger
}

// NewAnalyzer constructs an Analyzer. fetcher may be nil, in which case
// external stylesheets are reported but not fetched.
func NewAnalyzer(cfg Config, fetcher inspector.Fetcher, logger *zap.Logger) *Analyzer {
	if cfg.MaxStylesheets <= 0 {
		cfg.MaxStylesheets = defaultMaxStylesheets
	}
	if cfg.MaxStylesheetBytes <= 0 {
		cfg.MaxStylesheetBytes = defaultMaxStylesheetBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Analyze parses the page body, gathers inline and external CSS, and returns
// the aggregated font report. Stylesheet fetch failures are recorded on the
// StylesheetRef and do not fail the analysis.
func (a *Analyzer) Analyze(ctx context.Context, pageURL string, body []byte) (inspector.FontReport, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return inspector.FontReport{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return inspector.FontReport{}, fmt.Errorf("parse page url: %w", err)
	}

	collector := newReportCollector(base.Hostname())

	// Inline <style> blocks.
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		css := sel.Text()
		if strings.TrimSpace(css) == "" {
			return
		}
		collector.addSheet(inspector.StylesheetRef{Inline: true, Fetched: true, Bytes: len(css)}, scanCSS(css))
	})

	// External stylesheets, alternate included, dedup by resolved URL.
	var hrefs []string
	doc.Find(`link[rel~="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	a.collectExternal(ctx, base, hrefs, collector, 0)

	// Inline style attributes contribute usage counts only.
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		collector.addFamilies(familiesFromDeclarations(style))
	})

	// Preloaded fonts show up even when the CSS hides behind JS.
	doc.Find(`link[rel="preload"][as="font"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveRef(base, href)
		collector.addPreload(resolved)
	})

	return collector.report(), nil
}

// collectExternal resolves, fetches, and scans stylesheet URLs, following
// @import chains one level at a time up to the configured cap.
func (a *Analyzer) collectExternal(
	ctx context.Context,
	base *url.URL,
	hrefs []string,
	collector *reportCollector,
	depth int,
) {
	if depth > 3 {
		return
	}
	for _, href := range hrefs {
		if collector.sheetCount() >= a.cfg.MaxStylesheets {
			a.logger.Debug("stylesheet cap reached", zap.String("page", base.String()))
			return
		}
		resolved := resolveRef(base, href)
		if resolved == "" || collector.seen(resolved) {
			continue
		}
		ref := inspector.StylesheetRef{
			URL:      resolved,
			Provider: classifyProvider(resolved, base.Hostname()),
		}
		if a.fetcher == nil {
			collector.addSheet(ref, cssSheet{})
			continue
		}
		resp, err := a.fetcher.Fetch(ctx, inspector.FetchRequest{URL: resolved})
		if err != nil || resp.StatusCode >= 400 {
			a.logger.Debug("stylesheet fetch failed",
				zap.String("url", resolved),
				zap.Int("status", resp.StatusCode),
				zap.Error(err),
			)
			collector.addSheet(ref, cssSheet{})
			continue
		}
		if len(resp.Body) > a.cfg.MaxStylesheetBytes {
			a.logger.Warn("stylesheet too large, skipping",
				zap.String("url", resolved),
				zap.Int("bytes", len(resp.Body)),
			)
			collector.addSheet(ref, cssSheet{})
			continue
		}
		ref.Fetched = true
		ref.Bytes = len(resp.Body)
		sheet := scanCSS(string(resp.Body))
		collector.addSheet(ref, sheet)

		if len(sheet.imports) > 0 {
			sheetBase, err := url.Parse(resolved)
			if err == nil {
				a.collectExternal(ctx, sheetBase, sheet.imports, collector, depth+1)
			}
		}
	}
}

func resolveRef(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "data:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// reportCollector accumulates sheet results and deduplicates faces/families.
type reportCollector struct {
	pageHost string
	sheets   []inspector.StylesheetRef
	seenURLs map[string]bool
	faces    []inspector.FontFace
	faceKeys map[string]bool
	usage    map[string]*inspector.FamilyUsage
	preloads []string
}

func newReportCollector(pageHost string) *reportCollector {
	return &reportCollector{
		pageHost: pageHost,
		seenURLs: map[string]bool{},
		faceKeys: map[string]bool{},
		usage:    map[string]*inspector.FamilyUsage{},
	}
}

func (c *reportCollector) sheetCount() int {
	return len(c.sheets)
}

func (c *reportCollector) seen(url string) bool {
	return c.seenURLs[url]
}

func (c *reportCollector) addSheet(ref inspector.StylesheetRef, sheet cssSheet) {
	if ref.URL != "" {
		c.seenURLs[ref.URL] = true
	}
	c.sheets = append(c.sheets, ref)
	for _, face := range sheet.faces {
		c.addFace(face, ref.URL)
	}
	c.addFamilies(sheet.families)
}

func (c *reportCollector) addFace(face inspector.FontFace, sheetURL string) {
	for i, src := range face.Sources {
		if src.Format == "" && src.URL != "" {
			face.Sources[i].Format = formatFromURL(src.URL)
		}
	}
	face.Provider = faceProvider(face, sheetURL, c.pageHost)
	key := strings.ToLower(face.Family) + "|" + face.Style + "|" + face.Weight + "|" + face.UnicodeRange
	if c.faceKeys[key] {
		return
	}
	c.faceKeys[key] = true
	c.faces = append(c.faces, face)
}

func (c *reportCollector) addFamilies(families []string) {
	for _, family := range families {
		lower := strings.ToLower(family)
		entry, ok := c.usage[lower]
		if !ok {
			entry = &inspector.FamilyUsage{Family: family, Generic: genericFamilies[lower]}
			c.usage[lower] = entry
		}
		entry.Declarations++
	}
}

func (c *reportCollector) addPreload(url string) {
	if url == "" || c.seenURLs["preload:"+url] {
		return
	}
	c.seenURLs["preload:"+url] = true
	c.preloads = append(c.preloads, url)
}

func (c *reportCollector) report() inspector.FontReport {
	usage := make([]inspector.FamilyUsage, 0, len(c.usage))
	for _, entry := range c.usage {
		usage = append(usage, *entry)
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Declarations != usage[j].Declarations {
			return usage[i].Declarations > usage[j].Declarations
		}
		return usage[i].Family < usage[j].Family
	})

	faces := c.faces
	// Preloaded font files without a matching @font-face still deserve a row.
	for _, preload := range c.preloads {
		if !c.hasFaceSource(preload) {
			faces = append(faces, inspector.FontFace{
				Family:   preloadFamilyGuess(preload),
				Sources:  []inspector.FontSource{{URL: preload, Format: formatFromURL(preload)}},
				Provider: classifyProvider(preload, c.pageHost),
			})
		}
	}
	return inspector.FontReport{
		Stylesheets: c.sheets,
		Faces:       faces,
		Usage:       usage,
	}
}

func (c *reportCollector) hasFaceSource(url string) bool {
	for _, face := range c.faces {
		for _, src := range face.Sources {
			if src.URL == url {
				return true
			}
		}
	}
	return false
}

// faceProvider classifies a face by its first remote source, falling back to
// the stylesheet that declared it.
func faceProvider(face inspector.FontFace, sheetURL, pageHost string) string {
	for _, src := range face.Sources {
		if src.URL != "" {
			return classifyProvider(src.URL, pageHost)
		}
	}
	if sheetURL != "" {
		return classifyProvider(sheetURL, pageHost)
	}
	return ProviderSelfHosted
}

// preloadFamilyGuess derives a display name from a font file name.
func preloadFamilyGuess(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		path = path[idx+1:]
	}
	if idx := strings.LastIndexByte(path, '.'); idx > 0 {
		path = path[:idx]
	}
	path = strings.NewReplacer("-", " ", "_", " ").Replace(path)
	return strings.TrimSpace(path)
}
