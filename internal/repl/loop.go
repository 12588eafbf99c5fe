package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"tripagent/internal/agent"
	"tripagent/internal/chat"
	"tripagent/internal/export"
	"tripagent/internal/query"
	"tripagent/internal/stream"
	"tripagent/internal/trip"
)

var replCommands = []string{
	"/ask <question>       one-shot question (cached, deterministic when possible)",
	"/actions              list proposed itinerary changes",
	"/confirm <action_id>  confirm a proposed change",
	"/reject <action_id>   reject a proposed change",
	"/generate <request>   generate itinerary events from a description",
	"/events               list the trip's events with their ids",
	"/export <file.ics>    export the itinerary as an iCalendar file",
	"/new                  start a fresh conversation",
	"/help                 show this list",
	"/exit                 quit",
}

// Loop is the interactive shell around one trip. Plain input runs an agent
// conversation turn; slash commands hit the other engine surfaces directly.
type Loop struct {
	trip      trip.Trip
	resolver  *query.Resolver
	orch      *agent.Orchestrator
	actions   *agent.Actions
	generator *stream.Generator

	input LineInput
	out   io.Writer
	theme Theme
	width int

	history []chat.Message
}

// Deps carries the engine surfaces the loop drives. All are required except
// Out, which defaults to stdout.
type Deps struct {
	Trip      trip.Trip
	Resolver  *query.Resolver
	Orch      *agent.Orchestrator
	Actions   *agent.Actions
	Generator *stream.Generator
	Input     LineInput
	Out       io.Writer
}

func NewLoop(deps Deps) *Loop {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &Loop{
		trip:      deps.Trip,
		resolver:  deps.Resolver,
		orch:      deps.Orch,
		actions:   deps.Actions,
		generator: deps.Generator,
		input:     deps.Input,
		out:       out,
		theme:     DarkTheme(),
		width:     100,
		history:   make([]chat.Message, 0, 16),
	}
}

// Run reads and dispatches input until EOF, interrupt or /exit.
func (l *Loop) Run(ctx context.Context) error {
	fmt.Fprintln(l.out, l.theme.TitleStyle.Render(l.trip.Name)+
		l.theme.MutedStyle.Render(fmt.Sprintf("  %s to %s, %d events", l.trip.StartDate, l.trip.EndDate, len(l.trip.Events))))
	fmt.Fprintln(l.out, l.theme.MutedStyle.Render("Type a message to chat, or /help for commands."))

	prompt := l.theme.PromptStyle.Render(strings.ToLower(strings.Fields(l.trip.Name+" trip")[0]) + "> ")
	for {
		text, err := l.input.ReadLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") {
			if quit := l.handleCommand(ctx, text); quit {
				return nil
			}
			continue
		}
		l.chatTurn(ctx, text)
	}
}

func (l *Loop) handleCommand(ctx context.Context, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(l.out, "commands:")
		for _, c := range replCommands {
			fmt.Fprintf(l.out, "  %s\n", c)
		}
	case "/new":
		l.history = l.history[:0]
		fmt.Fprintln(l.out, "conversation cleared")
	case "/ask":
		if rest == "" {
			fmt.Fprintln(l.out, "usage: /ask <question>")
			return false
		}
		l.ask(ctx, rest)
	case "/actions":
		l.listActions()
	case "/confirm":
		l.transition(rest, true)
	case "/reject":
		l.transition(rest, false)
	case "/generate":
		if rest == "" {
			fmt.Fprintln(l.out, "usage: /generate <request>")
			return false
		}
		l.generate(ctx, rest)
	case "/events":
		l.listEvents()
	case "/export":
		if rest == "" {
			fmt.Fprintln(l.out, "usage: /export <file.ics>")
			return false
		}
		l.exportICS(rest)
	default:
		fmt.Fprintf(l.out, "unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (l *Loop) ask(ctx context.Context, question string) {
	ans, err := l.resolver.Question(ctx, l.trip, question)
	if err != nil {
		l.printError(err)
		return
	}
	fmt.Fprintln(l.out, RenderMarkdown(ans.Answer, l.width))
	l.printFooter(ans.TokensUsed, ans.EstimatedCostUSD, ans.LatencyMS, ans.Cached, ans.Deterministic)
}

func (l *Loop) chatTurn(ctx context.Context, text string) {
	l.history = append(l.history, chat.User(text))
	res, err := l.orch.Chat(ctx, l.trip, l.history)
	if err != nil {
		// The failed user message stays out of the history so a retry is clean.
		l.history = l.history[:len(l.history)-1]
		l.printError(err)
		return
	}
	l.history = append(l.history, chat.Assistant(res.Reply))

	fmt.Fprintln(l.out, RenderMarkdown(res.Reply, l.width))
	for _, action := range res.Actions {
		l.printAction(action)
	}
	if len(res.Actions) > 0 {
		fmt.Fprintln(l.out, l.theme.MutedStyle.Render("use /confirm <action_id> or /reject <action_id>"))
	}
	l.printFooter(res.TokensUsed, res.EstimatedCostUSD, res.LatencyMS, false, res.Deterministic)
}

func (l *Loop) generate(ctx context.Context, description string) {
	res, err := l.generator.Generate(ctx, l.trip.Name, l.trip.StartDate, l.trip.EndDate, description, func(e trip.Event) {
		l.trip.Events = append(l.trip.Events, e)
		fmt.Fprintf(l.out, "%s %s\n", l.theme.SuccessStyle.Render("+ "+e.Title), l.theme.MutedStyle.Render(e.Start))
	})
	if err != nil {
		l.printError(err)
		return
	}
	fmt.Fprintf(l.out, "%d events generated\n", res.EventCount)
	l.printFooter(res.TokensUsed, res.EstimatedCostUSD, res.LatencyMS, false, false)
}

func (l *Loop) listActions() {
	actions, err := l.actions.List(l.trip.ID)
	if err != nil {
		l.printError(err)
		return
	}
	if len(actions) == 0 {
		fmt.Fprintln(l.out, "no actions")
		return
	}
	for _, action := range actions {
		l.printAction(action)
	}
}

func (l *Loop) transition(id string, confirm bool) {
	if id == "" {
		fmt.Fprintln(l.out, "usage: /confirm|/reject <action_id>")
		return
	}
	var (
		action agent.AgentAction
		err    error
	)
	if confirm {
		action, err = l.actions.Confirm(id)
	} else {
		action, err = l.actions.Reject(id)
	}
	if err != nil {
		l.printError(err)
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", action.ID, l.theme.SuccessStyle.Render(action.Status))
}

func (l *Loop) listEvents() {
	if len(l.trip.Events) == 0 {
		fmt.Fprintln(l.out, "no events")
		return
	}
	for _, e := range l.trip.Events {
		fmt.Fprintf(l.out, "%s  %-13s %s %s\n",
			l.theme.MutedStyle.Render(e.ID), e.Category, e.Title, l.theme.MutedStyle.Render(e.Start))
	}
}

func (l *Loop) exportICS(path string) {
	if err := os.WriteFile(path, []byte(export.Calendar(l.trip)), 0o644); err != nil {
		l.printError(fmt.Errorf("write calendar: %w", err))
		return
	}
	fmt.Fprintf(l.out, "exported %d events to %s\n", len(l.trip.Events), path)
}

func (l *Loop) printAction(action agent.AgentAction) {
	title, _ := action.Event["title"].(string)
	line := fmt.Sprintf("[%s] %s %q", action.ID, action.Type, title)
	if action.Reason != "" {
		line += " (" + action.Reason + ")"
	}
	switch action.Status {
	case "proposed":
		fmt.Fprintln(l.out, l.theme.ActionStyle.Render(line))
	case "confirmed":
		fmt.Fprintln(l.out, l.theme.SuccessStyle.Render(line+" confirmed"))
	default:
		fmt.Fprintln(l.out, l.theme.MutedStyle.Render(line+" "+action.Status))
	}
}

func (l *Loop) printFooter(tokens int, cost float64, latencyMS int64, cached, deterministic bool) {
	footer := fmt.Sprintf("tokens=%d cost=$%.4f latency=%dms", tokens, cost, latencyMS)
	if cached {
		footer += " cached"
	}
	if deterministic {
		footer += " deterministic"
	}
	fmt.Fprintln(l.out, l.theme.MutedStyle.Render(footer))
}

func (l *Loop) printError(err error) {
	var (
		validation *query.ValidationError
		tooLarge   *query.ContextTooLargeError
	)
	switch {
	case errors.As(err, &validation):
		fmt.Fprintln(l.out, l.theme.WarningStyle.Render(err.Error()))
	case errors.As(err, &tooLarge):
		fmt.Fprintln(l.out, l.theme.WarningStyle.Render(err.Error()+" (try a narrower question)"))
	default:
		fmt.Fprintln(l.out, l.theme.ErrorStyle.Render("error: "+err.Error()))
	}
}
