package commands

import "context"

// Origin identifies the channel message a command was triggered by. It is
// zero for commands that arrive through the tool endpoint.
type Origin struct {
	Channel               string `json:"channel,omitempty"`
	ChannelUserID         string `json:"channelUserId,omitempty"`
	ChannelConversationID string `json:"channelConversationId,omitempty"`
	RequestMessageID      string `json:"requestMessageId,omitempty"`
}

// BudgetGoals is the input of profile.upsertBudgetAndGoals.
type BudgetGoals struct {
	MonthlyBudget float64  `json:"monthlyBudget" validate:"gte=0"`
	Goals         []string `json:"goals"         validate:"max=20,dive,max=64"`
	StyleTags     []string `json:"styleTags"     validate:"max=20,dive,max=64"`
}

// IngestPhotos is the input of profile.ingestPhotos.
type IngestPhotos struct {
	FileIDs        []string `json:"fileIds"             validate:"required,min=1,max=10"`
	PhotoURLs      []string `json:"photoUrls,omitempty" validate:"omitempty,max=10,dive,url"`
	ConsentGranted bool     `json:"consentGranted"`
	Source         string   `json:"source"              validate:"omitempty,oneof=upload import"`
}

// GenerateOutfits is the input of plan.generateOutfits.
type GenerateOutfits struct {
	OutfitCount    int      `json:"outfitCount"    validate:"min=1,max=12"`
	IncludeItemIDs []string `json:"includeItemIds" validate:"max=20"`
}

// RenderItem is the input of tryon.renderItemOnUser.
type RenderItem struct {
	ItemID         string `json:"itemId"         validate:"required,max=128"`
	PhotoSetID     string `json:"photoSetId"     validate:"required,max=128"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=120"`
}

// ApprovalRequest is the input of checkout.createApprovalLink.
type ApprovalRequest struct {
	ItemIDs []string `json:"itemIds" validate:"required,min=1,max=20"`
	Notes   string   `json:"notes"   validate:"max=500"`
}

// ProfileService manages the account's budget, goals and photos.
type ProfileService interface {
	UpsertBudgetAndGoals(ctx context.Context, accountID string, in BudgetGoals) (Response, error)
	IngestPhotos(ctx context.Context, accountID string, in IngestPhotos) (Response, error)
}

// PlanningService builds outfit plans.
type PlanningService interface {
	GenerateOutfits(ctx context.Context, accountID string, in GenerateOutfits) (Response, error)
}

// TryOnService renders catalog items on the account's photos.
type TryOnService interface {
	RenderItemOnUser(ctx context.Context, accountID string, in RenderItem, origin Origin) (Response, error)
}

// CheckoutService creates approval links for purchases.
type CheckoutService interface {
	CreateApprovalLink(ctx context.Context, accountID string, in ApprovalRequest) (Response, error)
}
