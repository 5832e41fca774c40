package linkedin

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheet-enricher/internal/lookup"
)

// searchResultSelectors are tried in order; the first matching link wins.
var searchResultSelectors = []string{
	".reusable-search__result-container .entity-result__title-text a",
	".search-results-container li a[href*='/company/']",
}

// ParseCompanySearch returns the first company result link on a search
// results page, or "" when there is none.
func ParseCompanySearch(base, html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "linkedin: parse search page")
	}
	for _, sel := range searchResultSelectors {
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok {
			continue
		}
		if abs := resolve(base, href); abs != "" {
			return abs, nil
		}
	}
	return "", nil
}

// ParseWebSearch returns the link of the first result on a search engine
// page: the last anchor that opens before the first <cite> inside #search.
// Only company profile links are returned.
func ParseWebSearch(base, html string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, eris.Wrap(err, "linkedin: parse web search page")
	}
	search := doc.Find("#search")
	if search.Length() == 0 {
		return "", false, nil
	}

	var last string
	search.Find("a, cite").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "cite" {
			return false
		}
		if href, ok := s.Attr("href"); ok {
			last = href
		}
		return true
	})

	href := unwrapRedirect(resolve(base, last))
	if !IsCompanyProfile(href) {
		return "", true, nil
	}
	return href, true, nil
}

// unwrapRedirect extracts q from search engine redirect links (/url?q=...).
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Path != "/url" {
		return href
	}
	if q := u.Query().Get("q"); q != "" {
		return q
	}
	if q := u.Query().Get("url"); q != "" {
		return q
	}
	return href
}

// ParseAboutDetails reads company size and industry from an about page.
// Size keeps only the first token of the value ("51-200 employees" -> "51-200").
func ParseAboutDetails(html string) (lookup.Details, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return lookup.Details{}, eris.Wrap(err, "linkedin: parse about page")
	}

	var d lookup.Details
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := collapse(dt.Text())
		value := collapse(dt.NextAllFiltered("dd").First().Text())
		if value == "" {
			return
		}
		switch {
		case d.Size == "" && strings.Contains(label, "Company size"):
			d.Size = strings.Fields(value)[0]
		case d.Industry == "" && strings.Contains(label, "Industry"):
			d.Industry = value
		}
	})
	return d, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
