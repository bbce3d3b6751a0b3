// Package relay installs signal relays declared in configuration. A rule
// maps a host signal on a named object to a page bus signal, optionally
// filtering with an expr expression and reshaping the payload with a
// JSONPath.
//
// Both the filter and the path see the payload as a document:
//
//	{"args": [arg0, arg1, ...], "payload": arg0}
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
)

// ErrInvalidRule is returned for rules missing a required field.
var ErrInvalidRule = errors.New("relay: invalid rule")

// Rule declares one relay.
type Rule struct {
	Object    string `yaml:"object" toml:"object" json:"object"`
	Signal    string `yaml:"signal" toml:"signal" json:"signal"`
	Event     string `yaml:"event" toml:"event" json:"event"`
	When      string `yaml:"when,omitempty" toml:"when" json:"when,omitempty"`
	Transform string `yaml:"transform,omitempty" toml:"transform" json:"transform,omitempty"`
}

// Validate checks required fields.
func (r Rule) Validate() error {
	switch {
	case r.Object == "":
		return fmt.Errorf("%w: object is required", ErrInvalidRule)
	case r.Signal == "":
		return fmt.Errorf("%w: signal is required for %s", ErrInvalidRule, r.Object)
	case r.Event == "":
		return fmt.Errorf("%w: event is required for %s.%s", ErrInvalidRule, r.Object, r.Signal)
	}
	return nil
}

// Compile turns the rule's filter and path into a transform. A rule with
// neither compiles to nil, which relays the payload unchanged.
func (r Rule) Compile() (remote.Transform, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.When == "" && r.Transform == "" {
		return nil, nil
	}

	var filter *vm.Program
	if r.When != "" {
		program, err := expr.Compile(r.When, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile filter for %s: %w", r.Event, err)
		}
		filter = program
	}

	var path func(context.Context, interface{}) (interface{}, error)
	if r.Transform != "" {
		eval, err := jsonpath.New(r.Transform)
		if err != nil {
			return nil, fmt.Errorf("compile transform for %s: %w", r.Event, err)
		}
		path = eval
	}

	return func(args []interface{}) ([]interface{}, bool) {
		doc := document(args)
		if filter != nil {
			out, err := expr.Run(filter, doc)
			if err != nil {
				return nil, false
			}
			if keep, _ := out.(bool); !keep {
				return nil, false
			}
		}
		if path == nil {
			return args, true
		}
		v, err := path(context.Background(), doc)
		if err != nil {
			return nil, false
		}
		return []interface{}{v}, true
	}, nil
}

func document(args []interface{}) map[string]interface{} {
	if args == nil {
		args = []interface{}{}
	}
	var first interface{}
	if len(args) > 0 {
		first = args[0]
	}
	return map[string]interface{}{
		"args":    args,
		"payload": first,
	}
}

// Install compiles every rule and binds it on the runtime. Nothing is bound
// if any rule fails to compile.
func Install(rt *bridge.Runtime, rules []Rule) error {
	transforms := make([]remote.Transform, len(rules))
	for i, rule := range rules {
		t, err := rule.Compile()
		if err != nil {
			return fmt.Errorf("relay %d: %w", i, err)
		}
		transforms[i] = t
	}

	for i, rule := range rules {
		rt.Proxy(rule.Object).BindSignal(rule.Signal, rule.Event, transforms[i])
		rt.Log.WithField("object", rule.Object).
			WithField("signal", rule.Signal).
			WithField("event", rule.Event).
			Debug("relay installed")
	}
	return nil
}
