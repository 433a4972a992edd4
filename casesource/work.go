package casesource

import (
	"context"
	"fmt"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/model"
)

// ModelWork returns a work function that answers each input with a model
// completion. Earlier turns of a multi-turn case are replayed as
// user/assistant messages. A string shared value, if present, is appended
// to the instructions.
func ModelWork(m model.Model, instructions string) func(ctx context.Context, input, shared any, history []core.Exchange) (string, error) {
	return func(ctx context.Context, input, shared any, history []core.Exchange) (string, error) {
		req := model.Request{Instructions: instructions}
		if s, ok := shared.(string); ok && s != "" {
			if req.Instructions != "" {
				req.Instructions += "\n\n"
			}
			req.Instructions += s
		}
		for _, ex := range history {
			req.Messages = append(req.Messages,
				model.Message{Role: model.RoleUser, Text: util.Stringify(ex.Input)},
				model.Message{Role: model.RoleAssistant, Text: util.Stringify(ex.Output)},
			)
		}
		req.Messages = append(req.Messages, model.Message{Role: model.RoleUser, Text: util.Stringify(input)})

		resp, err := model.Complete(ctx, m, req)
		if err != nil {
			return "", fmt.Errorf("model %s: %w", m.Info().Name, err)
		}
		return resp.Text, nil
	}
}
