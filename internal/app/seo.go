package app

import (
	"net/url"
	"strings"
)

// DefaultSiteURL is the public site the canonical URLs point at.
const DefaultSiteURL = "https://eliksirbar.pl"

// SEOUsecase defines the per-page metadata lookup.
type SEOUsecase interface {
	Meta(page string) SEOMeta
}

// SEOMeta is the search metadata of one site page.
type SEOMeta struct {
	Page         string   `json:"page"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Keywords     []string `json:"keywords"`
	CanonicalURL string   `json:"canonicalUrl"`
}

type seoEntry struct {
	title       string
	description string
	keywords    []string
	path        string
}

var seoPages = map[string]seoEntry{
	"home": {
		title:       "Eliksir Bar & Restaurant - Mobilny Bar Koktajlowy",
		description: "Profesjonalny mobilny bar koktajlowy na imprezy firmowe, wesela, eventy. Eliksir Bar - tworzymy niepowtarzalne drinki i atmosferę!",
		keywords:    []string{"mobilny bar", "koktajle", "imprezy firmowe", "wesela", "eventy", "drinki", "Eliksir Bar"},
		path:        "/",
	},
	"kontakt": {
		title:       "Kontakt - Eliksir Bar & Restaurant",
		description: "Skontaktuj się z nami, aby zamówić mobilny bar koktajlowy na Twoją imprezę. Eliksir Bar - profesjonalna obsługa, wyśmienite drinki!",
		keywords:    []string{"kontakt", "zamówienie", "cennik", "Eliksir Bar", "mobilny bar"},
		path:        "/kontakt",
	},
	"admin": {
		title:       "Panel Administracyjny - Eliksir Bar",
		description: "Panel administracyjny Eliksir Bar - zarządzanie statystykami i treściami",
		keywords:    []string{"admin", "panel", "statystyki", "Eliksir Bar"},
		path:        "/admin",
	},
}

var seoFallback = seoEntry{
	title:       "Eliksir Bar & Restaurant",
	description: "Profesjonalny mobilny bar koktajlowy",
	keywords:    []string{"Eliksir Bar", "mobilny bar", "koktajle"},
}

// SEOService implements SEOUsecase from a fixed table.
// Unknown pages get generic metadata with a canonical URL built from the name.
type SEOService struct {
	BaseURL string
}

// Meta returns the metadata for page.
func (s SEOService) Meta(page string) SEOMeta {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultSiteURL
	}

	e, ok := seoPages[page]
	if !ok {
		e = seoFallback
		e.path = "/" + url.PathEscape(page)
	}
	return SEOMeta{
		Page:         page,
		Title:        e.title,
		Description:  e.description,
		Keywords:     append([]string(nil), e.keywords...),
		CanonicalURL: base + e.path,
	}
}
