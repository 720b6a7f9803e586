package builtin

import (
	"context"

	"github.com/nstogner/investigator/pkg/toolkit"
)

// Think is the mandatory self-check tool: the Investigator's decision
// parser only accepts a [INVESTIGATION_COMPLETE] sentinel as done when
// the most recent tool_call decision named "think" precedes it (spec
// §4.5 self-check gate). Execution has no side effects; the value of
// calling it is purely in the thought the model is made to articulate.
type Think struct{}

func (Think) Name() string { return "think" }

func (Think) Description() string {
	return "记录一段自检思考，用于在结束调查前复核已收集的发现是否完整、准确。"
}

func (Think) Parameters() toolkit.Schema {
	return toolkit.Schema{
		Properties: map[string]toolkit.Param{
			"thought": {Type: "string", Description: "自检思考的内容"},
		},
		Required: []string{"thought"},
	}
}

func (Think) Execute(ctx context.Context, args map[string]any) (string, error) {
	thought, _ := args["thought"].(string)
	if thought == "" {
		return "已记录自检。", nil
	}
	return "已记录自检: " + thought, nil
}
