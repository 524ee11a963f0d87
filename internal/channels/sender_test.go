package channels

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

func TestBuildText(t *testing.T) {
	parts := []domain.MessagePart{
		domain.TextPart("  Link your account.  "),
		domain.LinkPart("https://app.test/channels/link/abc", "Link account"),
		domain.LinkPart("https://app.test/raw", ""),
		domain.ImagePart("https://cdn.test/a.png", "ignored"),
	}
	assert.Equal(t, "Link your account.\n\nLink account: https://app.test/channels/link/abc\n\nhttps://app.test/raw", BuildText(parts))
	assert.Empty(t, BuildText(nil))
}

func TestPhotoCaption(t *testing.T) {
	img := domain.ImagePart("https://cdn.test/a.png", "Look 1")
	assert.Equal(t, "Look 1\nbody", photoCaption(img, "body"))

	long := photoCaption(domain.ImagePart("https://cdn.test/a.png", ""), strings.Repeat("x", 1500))
	assert.Len(t, long, maxCaptionRunes)
}

func TestSendError(t *testing.T) {
	err := &SendError{Channel: domain.ChannelWhatsApp, StatusCode: 400, Body: strings.Repeat("e", 400)}
	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.True(t, strings.HasPrefix(err.Error(), "whatsapp_send_failed:400:"))
	assert.Len(t, err.Error(), len("whatsapp_send_failed:400:")+maxErrBody)

	r := err.Receipt()
	if assert.NotNil(t, r.ResponseCode) {
		assert.Equal(t, 400, *r.ResponseCode)
	}
	assert.Nil(t, (&SendError{Channel: domain.ChannelTelegram}).Receipt().ResponseCode)
}
