package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"askrelay/internal/config"
	"askrelay/internal/domain"

	"github.com/spf13/cobra"
)

func settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Interactive settings: provider, API keys, Ollama endpoint and model",
		Long:  "Walks through the provider choice and the fields it needs, validates them and saves the config to the path used by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettings(os.Stdin, cmd.OutOrStdout())
		},
	}
}

// prompter reads answers line by line, offering def when the answer is blank.
type prompter struct {
	r   *bufio.Reader
	out io.Writer
}

func (p prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	s := strings.TrimSpace(line)
	if s == "" {
		return def, nil
	}
	return s, nil
}

// secret is ask for credentials: the current value is shown masked and kept
// when the answer is blank.
func (p prompter) secret(label, cur string) (string, error) {
	if cur != "" {
		label = fmt.Sprintf("%s [%s, blank keeps it]", label, config.MaskSecret(cur))
	}
	v, err := p.ask(label, "")
	if err != nil {
		return "", err
	}
	if v == "" {
		return cur, nil
	}
	return v, nil
}

var stdinReader = bufio.NewReader(os.Stdin)

func confirm(question string) (bool, error) {
	p := prompter{r: stdinReader, out: os.Stdout}
	answer, err := p.ask(question+" (y/N)", "")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func runSettings(in io.Reader, out io.Writer) error {
	cfgPath := resolveConfigPath()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := collectSettings(prompter{r: bufio.NewReader(in), out: out}, cfg.Settings)
	if err != nil {
		return err
	}
	cfg.Settings = s

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n✓ Settings saved to %s\n", cfgPath)
	return nil
}

// collectSettings asks for the provider and the fields it needs, starting
// from cur, and returns the validated result.
func collectSettings(p prompter, cur domain.Settings) (domain.Settings, error) {
	fmt.Fprintln(p.out, "\n--- Provider ---")
	def := "1"
	for i, k := range domain.ProviderKinds {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, k.Label())
		if k == cur.Provider {
			def = fmt.Sprint(i + 1)
		}
	}
	choice, err := p.ask(fmt.Sprintf("Choose provider (1-%d)", len(domain.ProviderKinds)), def)
	if err != nil {
		return cur, err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n == 1 && idx >= 1 && idx <= len(domain.ProviderKinds) {
		cur.Provider = domain.ProviderKinds[idx-1]
	} else if k, err := domain.ParseProviderKind(choice); err == nil {
		cur.Provider = k
	} else {
		return cur, err
	}

	switch cur.Provider {
	case domain.ProviderGemini:
		cur.GeminiAPIKey, err = p.secret("Gemini API key", cur.GeminiAPIKey)
	case domain.ProviderOpenAI:
		cur.OpenAIAPIKey, err = p.secret("OpenAI API key", cur.OpenAIAPIKey)
	case domain.ProviderOllama:
		if cur.OllamaEndpoint == "" {
			cur.OllamaEndpoint = config.DefaultOllamaEndpoint
		}
		if cur.OllamaModel == "" {
			cur.OllamaModel = config.DefaultOllamaModel
		}
		if cur.OllamaEndpoint, err = p.ask("Ollama endpoint", cur.OllamaEndpoint); err != nil {
			return cur, err
		}
		cur.OllamaModel, err = p.ask("Ollama model", cur.OllamaModel)
	}
	if err != nil {
		return cur, err
	}

	if err := config.ValidateSettings(cur); err != nil {
		return cur, err
	}
	return cur, nil
}
