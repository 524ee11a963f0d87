package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
)

// Fixed reply texts.
const (
	TextSignatureFailed = "Webhook signature validation failed."
	TextBlocked         = "This account is blocked."
	TextDefaultReply    = "OK."
	TextCommandFailed   = "Sorry, something went wrong while handling your request. Please try again."

	textLinkIntro = "Link your account to continue.\n\nOpen this link: %s\n\nAfter linking, send a full head-to-toe front-facing photo with feet visible."
	textPlanOutro = `Reply with: "try on prod_001" or "checkout prod_001 prod_002".`

	maxPlanItems   = 12
	maxPartRunes   = 4096
	previewRunes   = 140
	linkTitle      = "Link account"
	approveTitle   = "Approve order"
	payStripeTitle = "Pay with Stripe"
)

// linkReplyParts is the onboarding reply of the link gate.
func linkReplyParts(url string) []domain.MessagePart {
	return []domain.MessagePart{
		domain.TextPart(fmt.Sprintf(textLinkIntro, url)),
		domain.LinkPart(url, linkTitle),
	}
}

// ComposeReply builds the reply parts from the command responses. The first
// outfit plan wins, then the first approval link, then the router hint, then
// the concatenated text of every response, then "OK.".
func ComposeReply(d intents.Decision, responses []commands.Response) []domain.MessagePart {
	for _, r := range responses {
		if r.Structured != nil && r.Structured.Type == commands.StructuredOutfitPlan && r.Structured.OutfitPlan != nil {
			return []domain.MessagePart{domain.TextPart(clipRunes(formatOutfitPlan(*r.Structured.OutfitPlan), maxPartRunes))}
		}
	}
	for _, r := range responses {
		if r.Structured != nil && r.Structured.Type == commands.StructuredApprovalLink &&
			r.Structured.Approval != nil && r.Structured.Approval.URL != "" {
			a := r.Structured.Approval
			parts := []domain.MessagePart{
				domain.TextPart("Approval link created."),
				domain.LinkPart(a.URL, approveTitle),
			}
			if a.StripeCheckoutURL != "" {
				parts = append(parts, domain.LinkPart(a.StripeCheckoutURL, payStripeTitle))
			}
			return parts
		}
	}
	if d.ResponseHint != "" {
		return []domain.MessagePart{domain.TextPart(d.ResponseHint)}
	}

	var texts []string
	for _, r := range responses {
		for _, t := range r.TextParts {
			if t = strings.TrimSpace(t); t != "" {
				texts = append(texts, t)
			}
		}
	}
	merged := strings.TrimSpace(strings.Join(texts, "\n"))
	if merged == "" {
		merged = TextDefaultReply
	}
	return []domain.MessagePart{domain.TextPart(clipRunes(merged, maxPartRunes))}
}

func formatOutfitPlan(p commands.OutfitPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d outfit option(s).", len(p.Outfits))
	if len(p.Items) > 0 {
		b.WriteString("\n\nItems:")
		items := p.Items
		if len(items) > maxPlanItems {
			items = items[:maxPlanItems]
		}
		for _, it := range items {
			title := it.Title
			if title == "" {
				title = "Item"
			}
			line := "- " + it.ID
			if it.Brand != "" {
				line += " (" + it.Brand + ")"
			}
			line += ": " + title
			if it.Price != nil {
				line += fmt.Sprintf(" $%.2f", *it.Price)
			}
			b.WriteString("\n" + line)
		}
	}
	b.WriteString("\n\n" + textPlanOutro)
	return b.String()
}

// previewText joins the text parts and keeps the first 140 runes.
func previewText(parts []domain.MessagePart) string {
	var texts []string
	for _, p := range parts {
		if p.Type == domain.PartText {
			texts = append(texts, p.Text)
		}
	}
	return clipRunes(strings.TrimSpace(strings.Join(texts, "\n")), previewRunes)
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
