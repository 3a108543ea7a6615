package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	t.Run("New message with numeric id", func(t *testing.T) {
		msg, err := types.DecodeMessage(json.RawMessage(`{"chatId":42,"message":{"id":7,"sender":5,"text":"hi"}}`))
		require.NoError(t, err)
		assert.Equal(t, int64(42), msg.ChatID)
		assert.Equal(t, types.ID("7"), msg.ID)
		assert.Equal(t, "hi", msg.Text)
		assert.Empty(t, msg.Status)
	})

	t.Run("Edited message with string id", func(t *testing.T) {
		msg, err := types.DecodeMessage(json.RawMessage(`{"chatId":1,"message":{"id":"115049","status":"EDITED","text":"fixed"}}`))
		require.NoError(t, err)
		assert.Equal(t, types.StatusEdited, msg.Status)
		n, ok := msg.ID.Int64()
		assert.True(t, ok)
		assert.Equal(t, int64(115049), n)
	})

	t.Run("Attachments decode to their variants", func(t *testing.T) {
		msg, err := types.DecodeMessage(json.RawMessage(`{"chatId":1,"message":{"id":"1","attaches":[
			{"_type":"PHOTO","photoId":10,"baseUrl":"https://img"},
			{"_type":"VIDEO","videoId":11,"duration":3},
			{"_type":"FILE","fileId":12,"name":"a.txt","size":4},
			{"_type":"STICKER","stickerId":13}
		]}}`))
		require.NoError(t, err)
		require.Len(t, msg.Attaches, 4)

		var kinds []types.AttachKind
		for _, a := range msg.Attaches {
			switch v := a.(type) {
			case *types.PhotoAttach:
				assert.Equal(t, "https://img", v.BaseURL)
			case *types.VideoAttach:
				assert.Equal(t, int64(11), v.VideoID)
			case *types.FileAttach:
				assert.Equal(t, "a.txt", v.Name)
			case *types.UnknownAttach:
				assert.Equal(t, "STICKER", v.Type)
			}
			kinds = append(kinds, a.Kind())
		}
		assert.Equal(t, []types.AttachKind{types.AttachPhoto, types.AttachVideo, types.AttachFile, types.AttachUnknown}, kinds)
	})

	t.Run("Missing message object", func(t *testing.T) {
		_, err := types.DecodeMessage(json.RawMessage(`{"chatId":1}`))
		var pe *protocol.ParseError
		assert.True(t, errors.As(err, &pe))
	})
}

func TestDecodeReactionUpdate(t *testing.T) {
	u, err := types.DecodeReactionUpdate(json.RawMessage(`{"chatId":3,"messageId":"9","totalCount":4,"yourReaction":"👍","counters":[{"reaction":"👍","count":3},{"reaction":"❤","count":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ChatID)
	assert.Equal(t, types.ID("9"), u.MessageID)
	assert.Equal(t, 4, u.Info.TotalCount)
	assert.Len(t, u.Info.Counters, 2)

	_, err = types.DecodeReactionUpdate(json.RawMessage(`{"chatId":3}`))
	assert.Error(t, err)
}

func TestUserDisplayName(t *testing.T) {
	u, err := types.DecodeUser(json.RawMessage(`{"id":5,"names":[{"name":"Ann","firstName":"Ann","type":"ONEME"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName())
	assert.Equal(t, "", (&types.User{}).DisplayName())
}
