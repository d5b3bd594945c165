package tools

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/llm"
)

// Calculator evaluates arithmetic expressions locally with CEL. It carries
// no flat fee and needs no credential.
type Calculator struct {
	env *cel.Env
}

func NewCalculator() (*Calculator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create expression environment")
	}
	return &Calculator{env: env}, nil
}

func (c *Calculator) Name() string { return ToolCalculator }

func (c *Calculator) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolCalculator,
		Description: "Evaluate an arithmetic expression and return the numeric result.",
		Parameters: `{
			"type": "object",
			"properties": {
				"expression": {"type": "string", "description": "Arithmetic expression, e.g. \"2+2\" or \"(3.5*4)/2\""}
			},
			"required": ["expression"]
		}`,
	}
}

func (c *Calculator) Payload(args map[string]any) string {
	return stringArg(args, "expression")
}

func (c *Calculator) Execute(_ context.Context, args map[string]any) (any, error) {
	expression := stringArg(args, "expression")
	if expression == "" {
		return nil, errors.New("expression required")
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "failed to compile expression")
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to plan expression")
	}
	out, _, err := prg.Eval(cel.NoVars())
	if err != nil {
		return nil, errors.Wrap(err, "failed to evaluate expression")
	}
	return out.Value(), nil
}
