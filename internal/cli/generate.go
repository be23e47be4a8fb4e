package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/critique"
	"github.com/skosovsky/llmrelay/workshop"
)

type generateFlags struct {
	prompt   string
	system   string
	schema   string
	step     int
	varsFile string
	vars     map[string]string
	raw      bool
}

func newGenerateCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Send a prompt and print the parsed JSON answer",
		Long: `Send a prompt to the active provider and print the answer.

With --step the prompt comes from the embedded workshop step, rendered with --vars and
--var, and the answer goes through the step's self-critique checks.`,
		Example: `  relayctl generate --prompt "List three colors" --schema colors.json
  relayctl generate --step 2 --var context="Hospital" --var security_baseline="ISO 27001"
  echo "Say hello" | relayctl generate --prompt - --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, a, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.prompt, "prompt", "p", "", `user prompt ("-" reads stdin)`)
	fl.StringVarP(&f.system, "system", "s", "", "system instruction")
	fl.StringVar(&f.schema, "schema", "", "response schema file (JSON or YAML)")
	fl.IntVar(&f.step, "step", 0, "workshop step number (1 to 5)")
	fl.StringVar(&f.varsFile, "vars", "", "YAML file with the step variables")
	fl.StringToStringVar(&f.vars, "var", nil, "step variable as key=value (repeatable)")
	fl.BoolVar(&f.raw, "raw", false, "print the raw text answer without JSON parsing")
	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, f generateFlags) error {
	req, check, err := buildRequest(cmd.InOrStdin(), f)
	if err != nil {
		return err
	}
	svc, _, closeFn, err := a.newService()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if f.raw {
		resp, err := svc.GenerateContent(ctx, req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, resp.Text)
		return err
	}
	var v any
	if check != nil {
		v, err = svc.GenerateValidated(ctx, req, check)
	} else {
		v, err = svc.Generate(ctx, req)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func buildRequest(stdin io.Reader, f generateFlags) (llmrelay.Request, critique.CheckFunc, error) {
	if f.step != 0 {
		return stepRequest(f)
	}
	prompt := f.prompt
	if prompt == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return llmrelay.Request{}, nil, fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return llmrelay.Request{}, nil, errors.New("--prompt or --step is required")
	}
	req := llmrelay.Request{UserPrompt: prompt, SystemInstruction: f.system}
	if f.schema != "" {
		var schema map[string]any
		if err := readYAML(f.schema, &schema); err != nil {
			return llmrelay.Request{}, nil, fmt.Errorf("reading schema: %w", err)
		}
		req.ResponseSchema = llmrelay.Schema(schema)
	}
	return req, nil, nil
}

func stepRequest(f generateFlags) (llmrelay.Request, critique.CheckFunc, error) {
	reg, err := workshop.Default()
	if err != nil {
		return llmrelay.Request{}, nil, err
	}
	step, err := reg.Step(f.step)
	if err != nil {
		return llmrelay.Request{}, nil, err
	}
	vars := make(map[string]any)
	if f.varsFile != "" {
		if err := readYAML(f.varsFile, &vars); err != nil {
			return llmrelay.Request{}, nil, fmt.Errorf("reading variables: %w", err)
		}
	}
	for k, v := range f.vars {
		vars[k] = v
	}
	req, err := step.Render(vars)
	if err != nil {
		return llmrelay.Request{}, nil, err
	}
	if f.system != "" {
		req = req.WithSystemInstruction(f.system)
	}
	return req, step.Checker(), nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a command-line argument
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
