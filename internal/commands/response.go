// Package commands executes routed tool commands against the domain
// services. The services themselves live outside this module; they are
// reached through the port interfaces declared in ports.go.
package commands

// StructuredType discriminates Structured variants.
type StructuredType string

const (
	StructuredOutfitPlan   StructuredType = "outfit_plan"
	StructuredApprovalLink StructuredType = "approval_link"
	StructuredGeneric      StructuredType = "generic"
)

// Response is the tool-style result of one command.
type Response struct {
	TextParts  []string    `json:"textParts"`
	Structured *Structured `json:"structured,omitempty"`
}

// Structured is a closed union. Exactly one of OutfitPlan, Approval or
// Generic is set, matching Type.
type Structured struct {
	Type       StructuredType `json:"type"`
	OutfitPlan *OutfitPlan    `json:"outfitPlan,omitempty"`
	Approval   *ApprovalLink  `json:"approval,omitempty"`
	Generic    map[string]any `json:"generic,omitempty"`
}

// OutfitPlan is returned by plan.generateOutfits.
type OutfitPlan struct {
	Outfits []Outfit   `json:"outfits"`
	Items   []PlanItem `json:"items"`
}

type Outfit struct {
	ID      string   `json:"id"`
	ItemIDs []string `json:"itemIds"`
}

// PlanItem is a catalog item referenced by a plan. Price is nil when unknown.
type PlanItem struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Brand string   `json:"brand,omitempty"`
	Price *float64 `json:"price,omitempty"`
}

// ApprovalLink is returned by checkout.createApprovalLink.
type ApprovalLink struct {
	URL               string `json:"url"`
	StripeCheckoutURL string `json:"stripeCheckoutUrl,omitempty"`
}

// Text builds a response of plain text parts.
func Text(parts ...string) Response { return Response{TextParts: parts} }

// PlanResponse wraps an outfit plan.
func PlanResponse(p OutfitPlan, text ...string) Response {
	return Response{TextParts: text, Structured: &Structured{Type: StructuredOutfitPlan, OutfitPlan: &p}}
}

// ApprovalResponse wraps an approval link.
func ApprovalResponse(a ApprovalLink, text ...string) Response {
	return Response{TextParts: text, Structured: &Structured{Type: StructuredApprovalLink, Approval: &a}}
}

// GenericResponse wraps free-form structured content.
func GenericResponse(content map[string]any, text ...string) Response {
	return Response{TextParts: text, Structured: &Structured{Type: StructuredGeneric, Generic: content}}
}
