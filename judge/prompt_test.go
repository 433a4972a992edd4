package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		text      string
		want      bool
		reasoning string
	}{
		{"YES\nit matches", true, "it matches"},
		{"no\n\nwrong city", false, "wrong city"},
		{"  Pass.  ", true, ""},
		{"**FAIL**\nmissing detail", false, "missing detail"},
		{"Yes, the answer is correct", true, ""},
	}
	for _, tt := range tests {
		got, reasoning, err := ParseVerdict(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
		assert.Equal(t, tt.reasoning, reasoning, tt.text)
	}

	for _, bad := range []string{"", "maybe\nnot sure", "42"} {
		_, _, err := ParseVerdict(bad)
		assert.ErrorIs(t, err, ErrUnparseable, bad)
		assert.ErrorContains(t, err, "could not parse judgment")
	}
}

func TestPrompt_Judge(t *testing.T) {
	m := model.NewMockModel("judge-model", "mock")
	var prompt string
	m.SetFallback(func(req model.Request) (string, error) {
		prompt = req.Messages[0].Text
		assert.Equal(t, DefaultInstructions, req.Instructions)
		if strings.Contains(prompt, "Paris") {
			return "YES\nParis is the capital.", nil
		}
		return "NO\nWrong.", nil
	})
	p := NewPrompt(m)

	j, err := p.Judge(context.Background(), core.JudgeRequest{
		Response: "Paris",
		Criteria: "names the capital of France",
		Input:    "What is the capital of France?",
	})
	require.NoError(t, err)
	assert.Equal(t, core.Bool(true), j.Verdict)
	assert.Equal(t, "Paris is the capital.", j.Reasoning)
	assert.Equal(t, "judge-model", j.Metadata["judge_model"])
	assert.Contains(t, prompt, "names the capital of France")
	assert.Contains(t, prompt, "What is the capital of France?")

	j, err = p.Judge(context.Background(), core.JudgeRequest{Response: "Rome", Criteria: "x"})
	require.NoError(t, err)
	assert.Equal(t, core.Bool(false), j.Verdict)
}

func TestPrompt_CustomTemplateAndUnparseable(t *testing.T) {
	m := model.NewMockModel("judge-model", "mock")
	m.AddResponse("Is 4 in range 1-10?", "I cannot say")
	p := NewPrompt(m, func(o *PromptOptions) {
		o.Template = "Is {{.response}} in range {{.range}}?"
		o.Name = "range"
	})
	assert.Equal(t, "range", p.Name())

	_, err := p.Judge(context.Background(), core.JudgeRequest{Response: 4, Params: map[string]any{"range": "1-10"}})
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestFuncAndPredicate(t *testing.T) {
	j := Predicate("contains", func(resp any, crit string) bool {
		return strings.Contains(resp.(string), crit)
	})
	assert.Equal(t, "contains", j.Name())

	got, err := j.Judge(context.Background(), core.JudgeRequest{Response: "hello world", Criteria: "world"})
	require.NoError(t, err)
	assert.Equal(t, core.Bool(true), got.Verdict)
}
