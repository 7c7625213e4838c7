package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// Extractor reconstructs review entities from a rendered markup snapshot.
//
// The source markup exposes no stable key joining a review's identity block
// to its metadata block, so the two node collections are paired by index.
// This assumes both collections are congruent and equally ordered; a document
// violating that silently misattributes metadata. The pairing contract is
// kept for behavioural parity with the feed's layout.
type Extractor struct {
	selectors config.SelectorConfig
}

// NewExtractor constructs an extractor with the given DOM selectors.
func NewExtractor(selectors config.SelectorConfig) *Extractor {
	return &Extractor{selectors: selectors}
}

// Extract parses the snapshot into partial review entities. Missing metadata
// sub-fields stay nil; entity-level defaults are applied at persistence time.
func (e *Extractor) Extract(markup string) ([]types.ExtractedReview, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, fmt.Errorf("markup is empty")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	// Collection A: each author node anchors one review, and the nearest
	// content node after it in document order supplies its body text. A
	// review whose own content node is missing therefore shares the next
	// review's body rather than shifting every later body by one. Authors
	// with no following content node keep a nil body.
	reviews := []types.ExtractedReview{}
	var awaitingBody []int
	doc.Find(e.selectors.Author + ", " + e.selectors.Content).Each(func(_ int, s *goquery.Selection) {
		if s.Is(e.selectors.Author) {
			reviews = append(reviews, types.ExtractedReview{UserName: textPtr(s)})
			awaitingBody = append(awaitingBody, len(reviews)-1)
			return
		}
		body := strings.TrimSpace(s.Text())
		for _, idx := range awaitingBody {
			text := body
			reviews[idx].Content = &text
		}
		awaitingBody = awaitingBody[:0]
	})

	// Collection B: one metadata group per review, merged positionally.
	// Extra groups beyond len(A) are ignored; trailing A entries keep nil
	// metadata rather than aborting the batch.
	doc.Find(e.selectors.MetadataGroup).Each(func(i int, group *goquery.Selection) {
		if i >= len(reviews) {
			return
		}
		reviews[i].Score = ratingToken(group.Find(e.selectors.Rating).First())
		reviews[i].ThumbsUpCount = textPtrIfAny(group.Find(e.selectors.HelpfulCount).First())
		reviews[i].ReviewedAt = textPtrIfAny(group.Find(e.selectors.PostedAt).First())
		reviews[i].RepliedContent = textPtrIfAny(group.Find(e.selectors.Reply).First())
	})

	return reviews, nil
}

// ratingToken pulls the textual rating from the node's aria-label, which
// reads like "Rated 4 stars out of five". The second whitespace token is the
// rating. An absent node yields "0" so an otherwise-present metadata group
// never loses its rating to a markup hiccup.
func ratingToken(s *goquery.Selection) *string {
	zero := "0"
	if s.Length() == 0 {
		return &zero
	}
	label, ok := s.Attr("aria-label")
	if !ok {
		return &zero
	}
	fields := strings.Fields(label)
	if len(fields) < 2 {
		return &zero
	}
	return &fields[1]
}

func textPtr(s *goquery.Selection) *string {
	text := strings.TrimSpace(s.Text())
	return &text
}

func textPtrIfAny(s *goquery.Selection) *string {
	if s.Length() == 0 {
		return nil
	}
	return textPtr(s)
}
