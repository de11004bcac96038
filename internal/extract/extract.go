package extract

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"marketmate/backend/internal/domain"
)

var ErrNoPrice = errors.New("no asking price found on page")

// Ordered most specific first; marketplace markup changes often.
var selectors = struct {
	price, title, description, location, condition, timeListed, category, sellerName, sellerProfile, images []string
}{
	price: []string{
		`[data-testid="marketplace_listing_price"]`,
		`span[class*="x1lliihq"][class*="x6ikm8r"]`,
		`span[class*="x193iq5w"][class*="xeuugli"]`,
	},
	title: []string{
		`[data-testid="marketplace_listing_title"]`,
		`h1 span[class*="x193iq5w"]`,
		`h1`,
		`span[class*="x1heor9g"][class*="x1qlqyl8"]`,
	},
	description: []string{
		`[data-testid="marketplace_listing_description"]`,
		`div[data-ad-preview="message"]`,
		`span[class*="x193iq5w"][class*="xeuugli"][class*="x1fj9vlw"]`,
	},
	location: []string{
		`[data-testid="marketplace_listing_location"]`,
		`span[class*="x1lliihq"][class*="x6ikm8r"]`,
	},
	condition: []string{`[data-testid="marketplace_listing_condition"]`},
	timeListed: []string{
		`[data-testid="marketplace_listing_time"]`,
		`abbr[data-utime]`,
	},
	category: []string{
		`[data-testid="marketplace_listing_category"]`,
		`a[href*="/marketplace/category/"]`,
	},
	sellerName: []string{
		`[data-testid="marketplace_seller_name"]`,
		`a[href*="/marketplace/profile/"] span`,
		`span[class*="x193iq5w"][class*="xeuugli"][class*="x1fj9vlw"]`,
	},
	sellerProfile: []string{
		`a[href*="/marketplace/profile/"]`,
		`a[href*="facebook.com"][class*="x1i10hfl"]`,
	},
	images: []string{
		`[data-testid="marketplace_listing_image"] img`,
		`img[data-visualcompletion="media-vc-image"]`,
		`img[class*="x1lliihq"]`,
	},
}

// Extract reads a marketplace listing page. pageURL is the address the page
// was served from and supplies the listing id.
func Extract(r io.Reader, pageURL string) (domain.Listing, error) {
	return extractAt(r, pageURL, time.Now().UTC())
}

func extractAt(r io.Reader, pageURL string, now time.Time) (domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("parse listing html: %w", err)
	}

	askingPrice := ParsePrice(firstText(doc, selectors.price))
	if askingPrice <= 0 {
		askingPrice = findPriceInPage(doc)
	}
	if askingPrice <= 0 {
		return domain.Listing{}, ErrNoPrice
	}

	lines := textLines(doc)
	bodyText := strings.Join(lines, "\n")

	title := firstText(doc, selectors.title)
	if title == "" {
		title = findTitleInPage(doc)
	}

	description := firstText(doc, selectors.description)
	if description == "" {
		description = findDescription(doc)
	}

	location := firstText(doc, selectors.location)
	if location == "" {
		if m := locationRe.FindStringSubmatch(bodyText); m != nil {
			location = m[1]
		}
	}

	var daysListed int
	if timeText := firstText(doc, selectors.timeListed); timeText != "" {
		daysListed = ParseDaysListed(timeText)
	} else {
		daysListed = parseListedAgo(bodyText)
	}

	fullText := title + " " + description

	condition := firstText(doc, selectors.condition)
	if condition == "" {
		condition = findConditionLine(lines)
	}
	var conditionKeywords []string
	if condition == "" {
		condition, conditionKeywords = DetectCondition(fullText)
	} else {
		conditionKeywords = []string{strings.ToLower(condition)}
		condition = normalizeCondition(condition)
	}

	sellerName := firstText(doc, selectors.sellerName)
	if sellerName == "" {
		sellerName = findSellerName(doc)
	}

	var sellerProfileURL string
	if sel := firstMatch(doc, selectors.sellerProfile); sel != nil {
		sellerProfileURL, _ = sel.Attr("href")
	}

	listing := domain.Listing{
		ID:                listingID(pageURL, now),
		Title:             title,
		Description:       description,
		AskingPrice:       askingPrice,
		Currency:          "USD",
		Category:          firstText(doc, selectors.category),
		Location:          location,
		DaysListed:        daysListed,
		Condition:         condition,
		ConditionKeywords: conditionKeywords,
		UrgencyIndicators: FindUrgencyIndicators(fullText),
		SellerName:        sellerName,
		SellerProfileURL:  sellerProfileURL,
		Images:            extractImages(doc),
		URL:               pageURL,
	}
	if daysListed > 0 {
		listed := now.Add(-time.Duration(daysListed) * 24 * time.Hour)
		listing.TimeListed = &listed
	}
	return listing, nil
}

// MockListing is the canned listing served when mock mode is on.
func MockListing() domain.Listing {
	listed := time.Now().UTC().Add(-18 * 24 * time.Hour)
	return domain.Listing{
		ID:                "mock-123456",
		Title:             "Sony PlayStation 5 Console",
		Description:       "Used PS5 in great condition. Includes one controller and all cables. Must sell, moving next week. No lowballers please.",
		AskingPrice:       250,
		Currency:          "USD",
		Category:          "Electronics",
		Location:          "San Francisco, CA",
		TimeListed:        &listed,
		DaysListed:        18,
		Condition:         "good",
		ConditionKeywords: []string{"great condition"},
		UrgencyIndicators: []string{"must sell", "moving", "no lowballers"},
		SellerName:        "John D.",
		SellerProfileURL:  "/marketplace/profile/123456",
		Images:            []string{"https://example.com/image1.jpg"},
		URL:               "https://www.facebook.com/marketplace/item/123456",
	}
}

func firstMatch(doc *goquery.Document, sels []string) *goquery.Selection {
	for _, sel := range sels {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func firstText(doc *goquery.Document, sels []string) string {
	for _, sel := range sels {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// textLines approximates rendered text: one line per leaf element.
func textLines(doc *goquery.Document) []string {
	lines := make([]string, 0, 64)
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 || goquery.NodeName(s) == "script" || goquery.NodeName(s) == "style" {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	return lines
}

func findPriceInPage(doc *goquery.Document) float64 {
	var price float64
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if dollarOnlyRe.MatchString(text) {
			price = ParsePrice(text)
			return false
		}
		return true
	})
	return price
}

func findTitleInPage(doc *goquery.Document) string {
	var title string
	doc.Find(`[role="main"] span`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 5 && len(text) < 100 && !strings.HasPrefix(text, "$") && !strings.Contains(text, "Listed") {
			title = text
			return false
		}
		return true
	})
	return title
}

func findDescription(doc *goquery.Document) string {
	var best string
	doc.Find("div, span").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) <= 50 || len(text) >= 1000 {
			return
		}
		if strings.Contains(text, "Listed") || strings.Contains(text, "Seller information") {
			return
		}
		if (strings.ContainsAny(text, ".!") || len(text) > 100) && len(text) > len(best) {
			best = text
		}
	})
	return best
}

// findConditionLine reads "Condition: Used - Good" or a bare "Condition"
// label followed by its value on the next line.
func findConditionLine(lines []string) string {
	for i, line := range lines {
		m := conditionRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if label := strings.TrimSpace(m[1]); label != "" {
			return label
		}
		if i+1 < len(lines) {
			return lines[i+1]
		}
	}
	return ""
}

func findSellerName(doc *goquery.Document) string {
	var name string
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), "Seller information") {
			return true
		}
		link := s.Closest("div").Find(`a[href*="facebook.com"]`).First()
		name = strings.TrimSpace(link.Text())
		return name == ""
	})
	if name != "" {
		return name
	}

	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.Contains(href, "/marketplace/profile/") && !strings.Contains(href, "facebook.com/") {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if len(text) > 2 && len(text) < 50 && !strings.Contains(text, "http") {
			name = text
			return false
		}
		return true
	})
	return name
}

func extractImages(doc *goquery.Document) []string {
	images := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, sel := range selectors.images {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			src, ok := s.Attr("src")
			if !ok || src == "" {
				return
			}
			if _, dup := seen[src]; dup {
				return
			}
			seen[src] = struct{}{}
			images = append(images, src)
		})
	}
	return images
}

func listingID(pageURL string, now time.Time) string {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}
	if m := listingIDRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return fmt.Sprintf("listing-%d", now.UnixMilli())
}
