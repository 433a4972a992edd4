package judge

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/model"
)

// DefaultInstructions is the system prompt of the Prompt judge.
const DefaultInstructions = "You are a strict evaluator. You decide whether a response satisfies the given criteria."

// DefaultTemplate is the user prompt of the Prompt judge. It is rendered with
// the keys criteria, response, input and every judge parameter.
const DefaultTemplate = `Evaluate the response below against the criteria.

Criteria:
{{.criteria}}
{{if .input}}
Input:
{{.input}}
{{end}}
Response:
{{.response}}

Answer YES if the response satisfies the criteria and NO otherwise.
Put YES or NO alone on the first line, then explain your reasoning.`

// PromptOptions configure a Prompt judge.
type PromptOptions struct {
	Name         string
	Instructions string
	Template     string
	Logger       logging.Logger
}

// Prompt is the reference judgment back-end: it renders a prompt, asks a
// model for a YES/NO verdict and parses the first line of the answer.
type Prompt struct {
	model  model.Model
	opts   PromptOptions
	logger *logging.EvalLogger
}

var _ core.Judge = (*Prompt)(nil)

// NewPrompt creates a Prompt judge backed by m.
func NewPrompt(m model.Model, optFns ...func(o *PromptOptions)) *Prompt {
	opts := PromptOptions{
		Name:         "prompt",
		Instructions: DefaultInstructions,
		Template:     DefaultTemplate,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	p := &Prompt{model: m, opts: opts}
	if el, ok := opts.Logger.(*logging.EvalLogger); ok {
		p.logger = el.WithComponent("judge")
	}
	return p
}

// Name implements core.Judge.
func (p *Prompt) Name() string { return p.opts.Name }

// Judge implements core.Judge.
func (p *Prompt) Judge(ctx context.Context, req core.JudgeRequest) (core.Judgment, error) {
	state := make(map[string]any, len(req.Params)+3)
	maps.Copy(state, req.Params)
	state["criteria"] = req.Criteria
	state["response"] = util.Stringify(req.Response)
	state["input"] = util.Stringify(req.Input)

	text, err := util.RenderTemplate(p.opts.Template, state)
	if err != nil {
		return core.Judgment{}, fmt.Errorf("render judge prompt: %w", err)
	}

	start := time.Now()
	resp, err := model.Complete(ctx, p.model, model.UserText(p.opts.Instructions, text))
	p.logCall(time.Since(start), err)
	if err != nil {
		return core.Judgment{}, err
	}

	verdict, reasoning, err := ParseVerdict(resp.Text)
	if err != nil {
		return core.Judgment{}, err
	}

	info := p.model.Info()
	meta := map[string]any{"judge_model": info.Name, "judge_provider": info.Provider}
	if resp.Usage != nil {
		meta["judge_tokens"] = resp.Usage.TotalTokens
	}
	return core.Judgment{Verdict: core.Bool(verdict), Reasoning: reasoning, Metadata: meta}, nil
}

func (p *Prompt) logCall(d time.Duration, err error) {
	if p.logger != nil {
		p.logger.LogJudgeCall(p.opts.Name, d, err == nil, err)
		return
	}
	if err != nil {
		p.opts.Logger.Error("judge.failed", "judge", p.opts.Name, "duration", d, "error", err.Error())
	}
}

// ParseVerdict reads a YES/NO answer. The first word of the first non-blank
// line decides, case-insensitively: YES or PASS is true, NO or FAIL is false.
// The remaining lines are returned as reasoning.
func ParseVerdict(text string) (bool, string, error) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")

	word := strings.FieldsFunc(first, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(word) == 0 {
		return false, "", fmt.Errorf("%w: %q", ErrUnparseable, first)
	}

	reasoning := strings.TrimSpace(rest)
	switch strings.ToUpper(word[0]) {
	case "YES", "PASS":
		return true, reasoning, nil
	case "NO", "FAIL":
		return false, reasoning, nil
	default:
		return false, "", fmt.Errorf("%w: %q", ErrUnparseable, first)
	}
}
