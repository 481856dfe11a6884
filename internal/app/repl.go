package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"

	"github.com/fpt/llmbench/pkg/model"
)

// SlashCommand represents a command that starts with /
type SlashCommand struct {
	Name        string
	Description string
	Handler     func(w *Workbench, args []string) bool // Returns true if should exit
}

// getSlashCommands returns all available slash commands
func getSlashCommands() []SlashCommand {
	return []SlashCommand{
		{
			Name:        "help",
			Description: "Show available commands and usage information",
			Handler: func(w *Workbench, args []string) bool {
				showInteractiveHelp(w.out)
				return false
			},
		},
		{
			Name:        "models",
			Description: "Select models: /models id1 id2, or no arguments for a picker",
			Handler: func(w *Workbench, args []string) bool {
				ids := args
				if len(ids) == 0 {
					picked, err := pickModels(w.registry, w.Models())
					if err != nil {
						fmt.Fprintf(w.out, "Model selection failed: %v\n", err)
						return false
					}
					ids = picked
				}
				if err := w.SelectModels(ids); err != nil {
					fmt.Fprintf(w.out, "❌ %v\n", err)
					return false
				}
				fmt.Fprintf(w.out, "🧠 Models: %s\n", strings.Join(w.Models(), ", "))
				return false
			},
		},
		{
			Name:        "stream",
			Description: "Toggle streaming (single model only)",
			Handler: func(w *Workbench, args []string) bool {
				w.SetStreaming(!w.Streaming())
				fmt.Fprintf(w.out, "📡 Streaming: %s\n", onOff(w.Streaming()))
				return false
			},
		},
		{
			Name:        "system",
			Description: "Set the system message; no arguments restores the default",
			Handler: func(w *Workbench, args []string) bool {
				w.SetSystemMessage(strings.Join(args, " "))
				if w.SystemMessage() == "" {
					fmt.Fprintln(w.out, "📝 Using the default system message")
				} else {
					fmt.Fprintf(w.out, "📝 System message: %s\n", w.SystemMessage())
				}
				return false
			},
		},
		{
			Name:        "status",
			Description: "Show the current selection",
			Handler: func(w *Workbench, args []string) bool {
				showStatus(w)
				return false
			},
		},
		{
			Name:        "quit",
			Description: "Exit the interactive session",
			Handler: func(w *Workbench, args []string) bool {
				fmt.Fprintln(w.out, "👋 Goodbye!")
				return true
			},
		},
		{
			Name:        "exit",
			Description: "Exit the interactive session (alias for quit)",
			Handler: func(w *Workbench, args []string) bool {
				fmt.Fprintln(w.out, "👋 Goodbye!")
				return true
			},
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// handleSlashCommand processes commands that start with /
// Returns true if the command requests program exit, false otherwise
func handleSlashCommand(input string, w *Workbench) bool {
	// Check if this is just "/" - show command selector
	if strings.TrimSpace(input) == "/" {
		return showCommandSelector(w)
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}

	commandName := strings.TrimPrefix(parts[0], "/")
	commands := getSlashCommands()

	for _, cmd := range commands {
		if cmd.Name == commandName {
			return cmd.Handler(w, parts[1:])
		}
	}

	// Command not found - show available commands
	fmt.Fprintf(w.out, "❌ Unknown command: /%s\n", commandName)
	fmt.Fprintln(w.out, "💡 Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w.out, "  /%s - %s\n", cmd.Name, cmd.Description)
	}
	return false
}

// showCommandSelector shows an interactive command selector using promptui
func showCommandSelector(w *Workbench) bool {
	commands := getSlashCommands()

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ .Name | cyan }} - {{ .Description | faint }}",
		Inactive: "  {{ .Name | cyan }} - {{ .Description | faint }}",
		Selected: "{{ .Name | cyan }}",
	}

	searcher := func(input string, index int) bool {
		name := strings.ToLower(commands[index].Name)
		return strings.Contains(name, strings.ToLower(strings.TrimSpace(input)))
	}

	prompt := promptui.Select{
		Label:     "Choose a command",
		Items:     commands,
		Templates: templates,
		Size:      10,
		Searcher:  searcher,
	}

	i, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			fmt.Fprintln(w.out, "\nCancelled.")
			return false
		}
		fmt.Fprintf(w.out, "Command selection failed: %v\n", err)
		return false
	}
	return commands[i].Handler(w, nil)
}

type pickItem struct {
	Label    string
	ID       string
	Selected bool
}

// pickModels toggles models in a promptui list until "done" is chosen
func pickModels(registry *model.Registry, current []string) ([]string, error) {
	selected := make(map[string]bool)
	for _, id := range current {
		selected[id] = true
	}

	models := registry.Models()
	cursor := 0
	for {
		items := []pickItem{{Label: "✔ done", ID: ""}}
		for _, m := range models {
			label := fmt.Sprintf("%s  %s  %s per 1K", m.ID, m.Provider.DisplayName(), modelPrice(m))
			if m.Deprecated {
				label += "  (deprecated)"
			}
			items = append(items, pickItem{Label: label, ID: m.ID, Selected: selected[m.ID]})
		}

		prompt := promptui.Select{
			Label: "Toggle models",
			Items: items,
			Templates: &promptui.SelectTemplates{
				Label:    "{{ . }}",
				Active:   `▸ {{ if .Selected }}{{ "[x]" | green }}{{ else }}[ ]{{ end }} {{ .Label | cyan }}`,
				Inactive: `  {{ if .Selected }}{{ "[x]" | green }}{{ else }}[ ]{{ end }} {{ .Label }}`,
				Selected: "{{ .Label | faint }}",
			},
			Size:      12,
			CursorPos: cursor,
			Searcher: func(input string, index int) bool {
				return strings.Contains(strings.ToLower(items[index].Label), strings.ToLower(strings.TrimSpace(input)))
			},
		}

		i, _, err := prompt.Run()
		if err != nil {
			return nil, err
		}
		if items[i].ID == "" {
			break
		}
		selected[items[i].ID] = !selected[items[i].ID]
		cursor = i
	}

	var ids []string
	for _, m := range models {
		if selected[m.ID] {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func modelPrice(m model.ModelInfo) string {
	return fmt.Sprintf("$%g/$%g", m.InputPrice, m.OutputPrice)
}

// StartInteractiveMode runs the readline-based REPL
func StartInteractiveMode(ctx context.Context, w *Workbench) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:              "> ",
		AutoComplete:        createAutoCompleter(w.registry),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		HistoryLimit:        2000,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		fmt.Fprintf(w.out, "❌ Failed to initialize interactive mode: %v\n", err)
		fmt.Fprintln(w.out, "💡 Please use one-shot mode instead: llmbench ask \"your prompt\"")
		return
	}
	defer rl.Close()

	fmt.Fprintln(w.out, "🧪 llmbench workbench")
	showStatus(w)
	fmt.Fprintln(w.out, "💬 Commands start with '/', everything else is sent as a prompt.")
	fmt.Fprintln(w.out, strings.Repeat("=", 60))

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if handleSlashCommand(line, w) {
				break
			}
			continue
		}

		// Ctrl+C during a request cancels it and returns to the prompt
		execCtx, cancel := context.WithCancel(ctx)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT)
		go func() {
			select {
			case <-sigChan:
				fmt.Fprintln(w.out)
				cancel()
			case <-execCtx.Done():
			}
		}()

		askErr := w.Ask(execCtx, line)
		wasCanceled := execCtx.Err() == context.Canceled

		signal.Stop(sigChan)
		cancel()

		if askErr != nil {
			if wasCanceled {
				fmt.Fprintln(w.out, "🔄 Request cancelled.")
			} else {
				fmt.Fprintf(w.out, "❌ Error: %v\n", askErr)
			}
		}
	}
}

// createAutoCompleter completes slash commands and model ids after /models
func createAutoCompleter(registry *model.Registry) *readline.PrefixCompleter {
	var modelItems []readline.PrefixCompleterInterface
	for _, id := range registry.IDs() {
		modelItems = append(modelItems, readline.PcItem(id))
	}

	var pcItems []readline.PrefixCompleterInterface
	for _, cmd := range getSlashCommands() {
		if cmd.Name == "models" {
			pcItems = append(pcItems, readline.PcItem("/models", modelItems...))
			continue
		}
		pcItems = append(pcItems, readline.PcItem("/"+cmd.Name))
	}
	return readline.NewPrefixCompleter(pcItems...)
}

// filterInput filters input runes to handle special keys
func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showInteractiveHelp(out io.Writer) {
	fmt.Fprintln(out, "\n📚 Interactive Commands:")
	fmt.Fprintln(out, "  /                - Show interactive command selector")
	for _, cmd := range getSlashCommands() {
		fmt.Fprintf(out, "  /%-15s - %s\n", cmd.Name, cmd.Description)
	}
	fmt.Fprintln(out, "\n💡 Example:")
	fmt.Fprintln(out, "  > /models gpt-4o claude-3-haiku-20240307")
	fmt.Fprintln(out, "  > List three prime numbers as JSON")
}

func showStatus(w *Workbench) {
	models := "none"
	if len(w.Models()) > 0 {
		models = strings.Join(w.Models(), ", ")
	}
	system := "default"
	if w.SystemMessage() != "" {
		system = w.SystemMessage()
	}
	fmt.Fprintf(w.out, "🧠 Models: %s\n", models)
	fmt.Fprintf(w.out, "📡 Streaming: %s\n", onOff(w.Streaming()))
	fmt.Fprintf(w.out, "📝 System message: %s\n", system)
}
