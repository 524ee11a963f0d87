package intents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

func TestRoute_Budget(t *testing.T) {
	d := Route(event("budget $120"))
	require.Len(t, d.Commands, 1)
	assert.Equal(t, ToolUpsertBudgetAndGoals, d.Commands[0].ToolName)
	assert.Equal(t, 120.0, d.Commands[0].Arguments["monthlyBudget"])
	assert.Equal(t, []string{"channel_budget_update"}, d.Commands[0].Arguments["goals"])
	assert.Empty(t, d.ResponseHint)
}

func TestRoute_UploadPhoto(t *testing.T) {
	t.Run("without media yields hint", func(t *testing.T) {
		d := Route(event("upload photo"))
		assert.Empty(t, d.Commands)
		assert.Equal(t, HintAttachPhoto, d.ResponseHint)
	})

	t.Run("urls only when every media has one", func(t *testing.T) {
		d := Route(event("", domain.Media{MediaID: "a", RemoteURL: "https://x/a.jpg"}, domain.Media{MediaID: "b"}))
		require.Len(t, d.Commands, 1)
		args := d.Commands[0].Arguments
		assert.Equal(t, []string{"a", "b"}, args["fileIds"])
		assert.NotContains(t, args, "photoUrls")
		assert.Equal(t, true, args["consentGranted"])
		assert.Equal(t, "import", args["source"])
	})

	t.Run("all urls forwarded", func(t *testing.T) {
		d := Route(event("", domain.Media{MediaID: "a", RemoteURL: "https://x/a.jpg"}))
		assert.Equal(t, []string{"https://x/a.jpg"}, d.Commands[0].Arguments["photoUrls"])
	})
}

func TestRoute_Outfits(t *testing.T) {
	d := Route(event("outfits please"))
	require.Len(t, d.Commands, 1)
	assert.Equal(t, ToolGenerateOutfits, d.Commands[0].ToolName)
	assert.Equal(t, 4, d.Commands[0].Arguments["outfitCount"])
}

func TestRoute_TryOn(t *testing.T) {
	d := Route(event("try on prod_009"))
	require.Len(t, d.Commands, 1)
	assert.Equal(t, "prod_009", d.Commands[0].Arguments["itemId"])
	assert.Equal(t, "channel-tryon-evt-1", d.Commands[0].Arguments["idempotencyKey"])

	d = Route(event("try on"))
	assert.Empty(t, d.Commands)
	assert.Equal(t, HintSpecifyItem, d.ResponseHint)
}

func TestRoute_CheckoutMergesMetadata(t *testing.T) {
	ev := event("checkout prod_1")
	ev.Metadata = map[string]any{"selectedItemIds": []any{"prod_2", "prod_1", 7}}
	d := Route(ev)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, []string{"prod_1", "prod_2"}, d.Commands[0].Arguments["itemIds"])
	assert.Equal(t, "channel:telegram", d.Commands[0].Arguments["notes"])

	d = Route(event("checkout"))
	assert.Empty(t, d.Commands)
	assert.Equal(t, HintChooseItems, d.ResponseHint)
}

func TestRoute_Unknown(t *testing.T) {
	d := Route(event("hi"))
	assert.Equal(t, KindUnknown, d.Intent.Kind)
	assert.Empty(t, d.Commands)
	assert.Equal(t, HintCapabilities, d.ResponseHint)
}
