package discordbot

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/metroinfo/metrobot/reconciler"
	"github.com/stretchr/testify/assert"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}

func TestClassifyRESTError(t *testing.T) {
	assert.NoError(t, classifyRESTError(nil, reconciler.ErrChannelMissing))

	err := classifyRESTError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel), reconciler.ErrMessageMissing)
	assert.True(t, errors.Is(err, reconciler.ErrChannelMissing))

	err = classifyRESTError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), reconciler.ErrChannelMissing)
	assert.True(t, errors.Is(err, reconciler.ErrMessageMissing))

	err = classifyRESTError(restError(http.StatusNotFound, 0), reconciler.ErrMessageMissing)
	assert.True(t, errors.Is(err, reconciler.ErrMessageMissing))

	forbidden := restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions)
	err = classifyRESTError(forbidden, reconciler.ErrMessageMissing)
	assert.Equal(t, forbidden, err)
	assert.False(t, errors.Is(err, reconciler.ErrMessageMissing))

	other := errors.New("connection reset")
	assert.Equal(t, other, classifyRESTError(other, reconciler.ErrChannelMissing))
}
