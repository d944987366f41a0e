package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/debate"
)

var (
	chatTarget  string
	chatInitial float64
	chatIdle    time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the persona agents as one target",
	Long: `Reads messages from stdin and answers as whichever persona the selector
picks for the target. Lines starting with a slash are commands:

  /state            show the conversation and belief state
  /flag NAME [BOOL] set a manual conversion flag (default true)
  /pause, /resume   pause or resume the conversation
  /end              end the conversation and print its summary
  quit, exit        leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatTarget, "target", "t", "cli-user", "Target id to converse as")
	chatCmd.Flags().Float64Var(&chatInitial, "initial", 20, "Uniform starting belief for a new target")
	chatCmd.Flags().DurationVar(&chatIdle, "idle", 15*time.Minute, "Pause the conversation after this much silence (0 disables)")
}

// #region chat
func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Persuasion controller ready.")
	fmt.Fprintf(out, "  DB: %s | Generator: %s | Target: %s\n", cfg.Database, cfg.Generator.Kind, chatTarget)
	fmt.Fprintln(out, "Type a message (or 'quit' to exit):")

	s := &chatSession{app: a, out: out, target: chatTarget, initial: belief.Uniform(chatInitial), idle: chatIdle}
	if err := s.run(cmd.Context(), cmd.InOrStdin()); err != nil {
		return err
	}
	if sum := a.loop.End(context.Background(), chatTarget); sum != nil {
		printSummary(out, sum)
	}
	return a.persist()
}

type chatSession struct {
	app     *app
	out     io.Writer
	target  string
	initial belief.Vector
	idle    time.Duration
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if strings.HasPrefix(line, "/") {
			s.command(ctx, line)
			continue
		}
		s.message(ctx, line)
	}
	return scanner.Err()
}

func (s *chatSession) message(ctx context.Context, text string) {
	a := s.app
	if st, ok := a.loop.State(s.target); ok && st.Status == debate.StatusPaused {
		_ = a.loop.Resume(s.target)
	}

	turnCtx, cancel := context.WithTimeout(ctx, a.cfg.GeneratorTimeout())
	defer cancel()

	reply, err := a.loop.Continue(turnCtx, s.target, text)
	if errors.Is(err, debate.ErrNoConversation) {
		reply, err = a.loop.Start(turnCtx, s.target, text, debate.StartOptions{Initial: s.initial})
	}
	if err != nil {
		a.logger.Warn("turn failed", zap.String("target", s.target), zap.Error(err))
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if reply.Ended {
		fmt.Fprintln(s.out, "(conversation ended)")
		if reply.Summary != nil {
			printSummary(s.out, reply.Summary)
		}
		return
	}

	fmt.Fprintf(s.out, "\n%s: %s\n\n", reply.Name, reply.Text)
	fmt.Fprintf(s.out, "[%s] strategy=%s stage=%s composite=%.1f p=%.2f\n",
		reply.Persona, reply.Strategy, reply.Analysis.Stage, reply.Analysis.Composite, reply.Analysis.Probability)

	if s.idle > 0 {
		target := s.target
		err := a.sched.ScheduleFollowUp(target, func(context.Context) error {
			return a.loop.Pause(target)
		}, s.idle)
		if err != nil {
			a.logger.Warn("idle timer not set", zap.Error(err))
		}
	}
}

func (s *chatSession) command(ctx context.Context, line string) {
	a := s.app
	fields := strings.Fields(line)
	switch fields[0] {
	case "/state":
		st, ok := a.loop.State(s.target)
		if !ok {
			fmt.Fprintln(s.out, "no open conversation")
		} else {
			fmt.Fprintf(s.out, "conversation %s: %s, %d messages, persona %s, %d switches\n",
				st.ConversationID, st.Status, st.MessageCount, st.Persona, st.PersonaSwitches)
		}
		if tgt, err := a.tracker.Get(s.target); err == nil {
			snap := a.model.Snapshot(tgt.State)
			fmt.Fprintf(s.out, "stage %s, composite %.1f, status %s\n", snap.Stage, snap.Composite, tgt.Status)
		}

	case "/flag":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: /flag NAME [true|false]")
			return
		}
		value := true
		if len(fields) > 2 {
			v, err := strconv.ParseBool(fields[2])
			if err != nil {
				fmt.Fprintf(s.out, "bad value %q\n", fields[2])
				return
			}
			value = v
		}
		if err := a.tracker.SetFlag(ctx, s.target, fields[1], value); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "flag %s=%t\n", fields[1], value)

	case "/pause":
		s.report(a.loop.Pause(s.target))
	case "/resume":
		s.report(a.loop.Resume(s.target))
	case "/end":
		a.sched.CancelFollowUp(s.target)
		if sum := a.loop.End(ctx, s.target); sum != nil {
			printSummary(s.out, sum)
		} else {
			fmt.Fprintln(s.out, "no open conversation")
		}
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", fields[0])
	}
}

func (s *chatSession) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "ok")
}

// #endregion chat

func printSummary(w io.Writer, sum *debate.Summary) {
	fmt.Fprintf(w, "conversation %s with %s: %d messages over %s, %d persona switches\n",
		sum.ConversationID, sum.TargetID, sum.MessageCount, sum.Duration.Round(time.Millisecond), sum.PersonaSwitches)
	fmt.Fprintf(w, "  stage %s -> %s, conversion %s\n", sum.StartStage, sum.EndStage, sum.Status)
}
