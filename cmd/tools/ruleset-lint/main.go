// cmd/tools/ruleset-lint/main.go
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"tool-evaluator/internal/common/validation"
	"tool-evaluator/internal/engine"
	"tool-evaluator/pkg/registry"
)

const draftVersion = 1

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	if len(args) < 1 {
		help(out)
		return 1
	}

	switch args[0] {
	case "definition":
		cmd := flag.NewFlagSet("definition", flag.ContinueOnError)
		cmd.SetOutput(out)
		if err := cmd.Parse(args[1:]); err != nil {
			return 2
		}
		if cmd.NArg() == 0 {
			fmt.Fprintln(out, "Error: at least one definition file is required.")
			return 1
		}
		failed := 0
		for _, path := range cmd.Args() {
			if err := lintDefinitionFile(path); err != nil {
				fmt.Fprintf(out, "FAIL %s\n%v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "ok   %s\n", path)
		}
		if failed > 0 {
			return 1
		}

	case "registry":
		cmd := flag.NewFlagSet("registry", flag.ContinueOnError)
		cmd.SetOutput(out)
		path := cmd.String("path", "configs/activity-registry.json", "Path to registry file")
		if err := cmd.Parse(args[1:]); err != nil {
			return 2
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			fmt.Fprintf(out, "Error loading registry: %v\n", err)
			return 1
		}
		if problems := reg.Validate(); len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return 1
		}
		fmt.Fprintf(out, "Registry %s is valid (%d activities).\n", *path, len(reg.Activities))

	case "evaluate":
		cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
		cmd.SetOutput(out)
		defPath := cmd.String("definition", "", "Rule-set definition file")
		reqPath := cmd.String("request", "", "Evaluation request file")
		tier := cmd.String("tier", "", "Caller tier (defaults to the request's callerTier)")
		if err := cmd.Parse(args[1:]); err != nil {
			return 2
		}
		if *defPath == "" || *reqPath == "" {
			fmt.Fprintln(out, "Error: -definition and -request are required.")
			cmd.Usage()
			return 1
		}
		res, err := evaluateFiles(*defPath, *reqPath, *tier)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return 1
		}

	case "help", "-h", "--help":
		help(out)

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", args[0])
		help(out)
		return 1
	}
	return 0
}

// lintDefinitionFile runs the document schema and then the rule-set build,
// reporting every problem found.
func lintDefinitionFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = compile(data)
	return err
}

func compile(data []byte) (*engine.RuleSet, error) {
	res, err := validation.Definition.ValidateJSON(data)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, errors.New(problemList(res))
	}

	def, err := engine.ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	// Drafts carry no version; publishing assigns the next one.
	if def.Version == 0 {
		def.Version = draftVersion
	}
	return engine.NewRuleSet(def)
}

func problemList(res *validation.ValidationResult) string {
	var s string
	for i, e := range res.Errors {
		if i > 0 {
			s += "\n"
		}
		s += fmt.Sprintf("  - %s: %s", e.Field, e.Message)
	}
	return s
}

func evaluateFiles(defPath, reqPath, tier string) (engine.Result, error) {
	defData, err := os.ReadFile(defPath)
	if err != nil {
		return engine.Result{}, err
	}
	rs, err := compile(defData)
	if err != nil {
		return engine.Result{}, err
	}

	reqData, err := os.ReadFile(reqPath)
	if err != nil {
		return engine.Result{}, err
	}
	check, err := validation.EvaluateRequest.ValidateJSON(reqData)
	if err != nil {
		return engine.Result{}, err
	}
	if !check.Valid {
		return engine.Result{}, errors.New(problemList(check))
	}

	var req engine.Request
	if err := json.Unmarshal(reqData, &req); err != nil {
		return engine.Result{}, fmt.Errorf("decode request: %w", err)
	}
	if tier != "" {
		req.CallerTier = &tier
	}
	return engine.Evaluate(req, rs, nil, engine.Options{})
}

func help(out io.Writer) {
	fmt.Fprintln(out, `Usage: ruleset-lint <command> [flags]

Commands:
  definition <file>...                        Validate rule-set definition files
  registry [-path file]                       Validate the activity registry
  evaluate -definition f -request f [-tier t] Evaluate a request offline and print the result
  help                                        Show this help`)
}
