package main

import (
	"fmt"
	"strconv"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/evalmesh/judge"
	"github.com/hupe1980/evalmesh/model"
	"github.com/hupe1980/evalmesh/model/anthropic"
	"github.com/hupe1980/evalmesh/model/openai"
)

// newModel creates a model adapter. The mock provider echoes inputs and
// approves every judgment, which is useful for dry runs.
func newModel(provider, name string) (model.Model, error) {
	switch provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if name != "" {
				o.Model = name
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if name != "" {
				o.Model = sdkanthropic.Model(name)
			}
		}), nil
	case "mock":
		if name == "" {
			name = "mock"
		}
		m := model.NewMockModel(name, "mock")
		m.SetFallback(func(req model.Request) (string, error) {
			if req.Instructions == judge.DefaultInstructions {
				return "YES\nmock judge approves every response", nil
			}
			return req.Messages[len(req.Messages)-1].Text, nil
		})
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai, anthropic or mock)", provider)
	}
}

// parseStrategy accepts unanimous, majority or threshold:<t>.
func parseStrategy(s string) (judge.Strategy, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch kind {
	case "unanimous":
		return judge.Unanimous(), nil
	case "majority", "":
		return judge.Majority(), nil
	case "threshold":
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return judge.Strategy{}, fmt.Errorf("invalid threshold %q: %w", arg, err)
		}
		return judge.Threshold(t), nil
	default:
		return judge.Strategy{}, fmt.Errorf("unknown strategy %q", s)
	}
}
