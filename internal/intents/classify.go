// Package intents turns an inbound channel event into an intent and routes
// that intent to domain commands. Both steps are pure: no I/O, no clock.
package intents

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// Kind discriminates Intent variants.
type Kind string

const (
	KindUploadPhoto Kind = "upload_photo"
	KindSetBudget   Kind = "set_budget"
	KindShowOutfits Kind = "show_outfits"
	KindTryOn       Kind = "tryon"
	KindCheckout    Kind = "checkout"
	KindUnknown     Kind = "unknown"
)

// Intent is a closed union over Kind. Only the fields of the active variant
// are set: MonthlyBudget for set_budget, ItemID for tryon, ItemIDs for
// checkout.
type Intent struct {
	Kind          Kind     `json:"kind"`
	MonthlyBudget float64  `json:"monthlyBudget,omitempty"`
	ItemID        string   `json:"itemId,omitempty"`
	ItemIDs       []string `json:"itemIds,omitempty"`
}

var (
	reUploadPhoto = regexp.MustCompile(`(?i)upload\s+(a\s+)?photo`)
	reMyPhoto     = regexp.MustCompile(`(?i)my\s+photo`)
	reBudget      = regexp.MustCompile(`(?i)(?:budget|spend|monthly\s*budget)[^0-9$]{0,15}\$?\s*([0-9]+(?:\.[0-9]{1,2})?)`)
	reOutfits     = regexp.MustCompile(`(?i)\boutfits?\b|\blooks?\b`)
	reTryOn       = regexp.MustCompile(`(?i)try\s*-?on|try\s+this`)
	reCheckout    = regexp.MustCompile(`(?i)\bcheckout\b|\bbuy\b|\bpurchase\b`)
	reItemID      = regexp.MustCompile(`\b(prod_[a-zA-Z0-9_\-]+)\b`)
)

// normalize folds the text to NFKC so full-width digits and compatibility
// characters match the ASCII patterns.
func normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// Classify returns the intent of ev. It never fails; anything unrecognized
// is KindUnknown. Checks run in priority order: photo, budget, outfits,
// try-on, checkout.
func Classify(ev domain.InboundEvent) Intent {
	text := normalize(ev.TextValue())

	if len(ev.Media) > 0 || reUploadPhoto.MatchString(text) || reMyPhoto.MatchString(text) {
		return Intent{Kind: KindUploadPhoto}
	}
	if amount, ok := parseBudget(text); ok {
		return Intent{Kind: KindSetBudget, MonthlyBudget: amount}
	}
	if reOutfits.MatchString(text) {
		return Intent{Kind: KindShowOutfits}
	}
	if reTryOn.MatchString(text) {
		return Intent{Kind: KindTryOn, ItemID: firstItemID(text)}
	}
	if reCheckout.MatchString(text) {
		return Intent{Kind: KindCheckout, ItemIDs: itemIDs(text)}
	}
	return Intent{Kind: KindUnknown}
}

func parseBudget(text string) (float64, bool) {
	m := reBudget.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func firstItemID(text string) string {
	if m := reItemID.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// itemIDs returns the distinct item ids in order of first appearance.
func itemIDs(text string) []string {
	var out []string
	for _, m := range reItemID.FindAllStringSubmatch(text, -1) {
		out = appendUnique(out, m[1])
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
