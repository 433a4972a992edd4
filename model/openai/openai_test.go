package openai

import (
	"testing"

	"github.com/hupe1980/evalmesh/model"
	"github.com/stretchr/testify/assert"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "be strict",
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "q1"},
			{Role: model.RoleAssistant, Text: "a1"},
			{Role: model.RoleUser, Text: "q2"},
		},
	})
	assert.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-test" })
	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai"}, m.Info())
}
