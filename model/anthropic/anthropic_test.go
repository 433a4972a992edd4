package anthropic

import (
	"testing"

	"github.com/hupe1980/evalmesh/model"
	"github.com/stretchr/testify/assert"
)

func TestBuildMessages_SkipsSystemAndEmpty(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{Role: model.RoleSystem, Text: "sys"},
		{Role: model.RoleUser, Text: "q"},
		{Role: model.RoleAssistant, Text: ""},
		{Role: model.RoleAssistant, Text: "a"},
	})
	assert.Len(t, msgs, 2)
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "judge",
		Messages:     []model.Message{{Role: model.RoleSystem, Text: "extra"}, {Role: model.RoleUser, Text: "q"}},
	})
	assert.Len(t, blocks, 2)
	assert.Equal(t, "judge", blocks[0].Text)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "claude-test" })
	assert.Equal(t, model.Info{Name: "claude-test", Provider: "anthropic"}, m.Info())
}
