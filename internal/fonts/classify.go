package fonts

import (
	"net/url"
	"strings"
)

// Font providers recognized by source URL.
const (
	ProviderGoogle     = "google"
	ProviderAdobe      = "adobe"
	ProviderFontshare  = "fontshare"
	ProviderBunny      = "bunny"
	ProviderFontAwesom = "fontawesome"
	ProviderSelfHosted = "self-hosted"
	ProviderExternal   = "external"
	ProviderInline     = "inline"
)

var providerHosts = map[string]string{
	"fonts.googleapis.com":   ProviderGoogle,
	"fonts.gstatic.com":      ProviderGoogle,
	"use.typekit.net":        ProviderAdobe,
	"p.typekit.net":          ProviderAdobe,
	"use.typekit.com":        ProviderAdobe,
	"api.fontshare.com":      ProviderFontshare,
	"cdn.fontshare.com":      ProviderFontshare,
	"fonts.bunny.net":        ProviderBunny,
	"use.fontawesome.com":    ProviderFontAwesom,
	"kit.fontawesome.com":    ProviderFontAwesom,
	"ka-f.fontawesome.com":   ProviderFontAwesom,
	"cloud.typography.com":   "hoefler",
	"fast.fonts.net":         "monotype",
	"f.fontdeck.com":         "fontdeck",
	"webfonts.fontstand.com": "fontstand",
}

// classifyProvider maps a resolved source URL to a provider label. pageHost
// is the host of the inspected page; matching hosts are self-hosted.
func classifyProvider(rawURL, pageHost string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ProviderInline
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Relative source: served from the page's own origin.
		return ProviderSelfHosted
	}
	host := strings.ToLower(u.Hostname())
	if provider, ok := providerHosts[host]; ok {
		return provider
	}
	if host == strings.ToLower(pageHost) || strings.HasSuffix(host, "."+strings.ToLower(pageHost)) {
		return ProviderSelfHosted
	}
	return ProviderExternal
}

// formatFromURL guesses the font format from the file extension when the
// src entry carried no format() hint.
func formatFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		switch strings.ToLower(path[idx+1:]) {
		case "woff2":
			return "woff2"
		case "woff":
			return "woff"
		case "ttf":
			return "truetype"
		case "otf":
			return "opentype"
		case "eot":
			return "embedded-opentype"
		case "svg":
			return "svg"
		}
	}
	return ""
}
