package intents

import (
	"fmt"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// Tool names understood by the command executor.
const (
	ToolUpsertBudgetAndGoals = "profile.upsertBudgetAndGoals"
	ToolIngestPhotos         = "profile.ingestPhotos"
	ToolGenerateOutfits      = "plan.generateOutfits"
	ToolRenderItemOnUser     = "tryon.renderItemOnUser"
	ToolCreateApprovalLink   = "checkout.createApprovalLink"
)

// Fixed hints returned when an intent cannot be turned into a command.
const (
	HintAttachPhoto   = "Please attach a full head-to-toe front-facing photo."
	HintSpecifyItem   = "Please specify an item id (for example: try on prod_001)."
	HintChooseItems   = "Please choose one or more item ids before checkout."
	HintCapabilities  = "I can help with budget, photos, outfit planning, try-on, and checkout."
	defaultOutfitSize = 4
)

// Command is one tool invocation with JSON-shaped arguments.
type Command struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

// Decision is the router output: commands to run in order, or a hint to
// reply with when there is nothing to run.
type Decision struct {
	Intent       Intent    `json:"intent"`
	Commands     []Command `json:"commands"`
	ResponseHint string    `json:"responseHint,omitempty"`
}

// Route classifies ev and maps the intent to commands.
func Route(ev domain.InboundEvent) Decision {
	in := Classify(ev)
	d := Decision{Intent: in}

	switch in.Kind {
	case KindSetBudget:
		d.Commands = []Command{{
			ToolName: ToolUpsertBudgetAndGoals,
			Arguments: map[string]any{
				"monthlyBudget": in.MonthlyBudget,
				"goals":         []string{"channel_budget_update"},
				"styleTags":     []string{},
			},
		}}

	case KindUploadPhoto:
		if len(ev.Media) == 0 {
			d.ResponseHint = HintAttachPhoto
			break
		}
		fileIDs := make([]string, 0, len(ev.Media))
		urls := make([]string, 0, len(ev.Media))
		for _, m := range ev.Media {
			fileIDs = append(fileIDs, m.MediaID)
			if m.RemoteURL != "" {
				urls = append(urls, m.RemoteURL)
			}
		}
		args := map[string]any{
			"fileIds":        fileIDs,
			"consentGranted": true,
			"source":         "import",
		}
		// URLs are only forwarded when every attachment has one.
		if len(urls) == len(ev.Media) {
			args["photoUrls"] = urls
		}
		d.Commands = []Command{{ToolName: ToolIngestPhotos, Arguments: args}}

	case KindShowOutfits:
		d.Commands = []Command{{
			ToolName:  ToolGenerateOutfits,
			Arguments: map[string]any{"outfitCount": defaultOutfitSize, "includeItemIds": []string{}},
		}}

	case KindTryOn:
		if in.ItemID == "" {
			d.ResponseHint = HintSpecifyItem
			break
		}
		d.Commands = []Command{{
			ToolName: ToolRenderItemOnUser,
			Arguments: map[string]any{
				"itemId":         in.ItemID,
				"photoSetId":     "latest",
				"idempotencyKey": fmt.Sprintf("channel-tryon-%s", ev.EventID),
			},
		}}

	case KindCheckout:
		ids := append([]string(nil), in.ItemIDs...)
		for _, id := range selectedItemIDs(ev.Metadata) {
			ids = appendUnique(ids, id)
		}
		if len(ids) == 0 {
			d.ResponseHint = HintChooseItems
			break
		}
		d.Commands = []Command{{
			ToolName: ToolCreateApprovalLink,
			Arguments: map[string]any{
				"itemIds": ids,
				"notes":   "channel:" + string(ev.Channel),
			},
		}}

	default:
		d.ResponseHint = HintCapabilities
	}
	return d
}

// selectedItemIDs reads metadata.selectedItemIds, keeping only strings.
func selectedItemIDs(meta map[string]any) []string {
	raw, ok := meta["selectedItemIds"]
	if !ok {
		return nil
	}
	var out []string
	switch v := raw.(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
