package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/lazywriter/internal/client"
	"github.com/pavelanni/lazywriter/internal/extract"
	"github.com/pavelanni/lazywriter/internal/model"
)

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <topic>",
		Short: "Run a writing or quiz session in the terminal against a server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "Server URL including any base path")
	f.String("api-key", "", "Gemini API key (empty uses the server default)")
	f.StringP("model", "m", "", "Model name (empty uses the server default)")
	f.IntP("questions", "n", 5, "Number of questions before finishing")
	f.Bool("quiz", false, "Quiz mode: grade answers and finish with an analysis")
	f.String("refine", "", "Extra instruction for the final essay")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	c := client.New(v.GetString("server"), nil)
	topic := strings.Join(args, " ")
	quiz := v.GetBool("quiz")

	sess, err := c.StartSession(ctx, topic, v.GetString("model"), quiz)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if len(sess.Turns) > 0 {
		fmt.Fprintf(out, "Resuming %q with %d answered questions.\n", sess.Topic, len(sess.Turns))
	}

	req := model.GenerateRequest{
		Context:   topic,
		ContextID: sess.ID,
		APIKey:    v.GetString("api-key"),
		Model:     v.GetString("model"),
		Quiz:      quiz,
	}

	for i := 0; i < v.GetInt("questions"); i++ {
		// The question is complete once options start arriving.
		printed := false
		mcq, err := c.GenerateQuestion(ctx, req, func(d extract.MCQDraft) {
			if !printed && d.Question != nil && len(d.Options) > 0 {
				fmt.Fprintf(out, "\n%s\n", *d.Question)
				printed = true
			}
		})
		if err != nil {
			return fmt.Errorf("generate question: %w", err)
		}
		if !printed {
			fmt.Fprintf(out, "\n%s\n", mcq.Question)
		}
		for j, opt := range mcq.Options {
			fmt.Fprintf(out, "  %d) %s\n", j+1, opt)
		}

		selected, freeText, ok := readAnswer(in, out, len(mcq.Options))
		if !ok {
			break
		}
		res, err := c.Answer(ctx, sess.ID, client.AnswerRequest{
			Question:        mcq.Question,
			Options:         mcq.Options,
			SelectedIndices: selected,
			FreeText:        freeText,
			CorrectIndices:  mcq.CorrectIndices,
			APIKey:          req.APIKey,
			Model:           req.Model,
		})
		if err != nil {
			return fmt.Errorf("record answer: %w", err)
		}
		fmt.Fprintf(out, "Recorded: %s\n", res.Answer)
	}

	fmt.Fprintln(out)
	if quiz {
		if _, err := c.QuizFinalize(ctx, req, printChunk(out)); err != nil {
			return fmt.Errorf("quiz analysis: %w", err)
		}
		fmt.Fprintln(out)
		rep, err := c.Scores(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("load scores: %w", err)
		}
		fmt.Fprintf(out, "\nScore: %s\n", rep.Total)
		return nil
	}

	req.Refinement = v.GetString("refine")
	if _, err := c.Finalize(ctx, req, printChunk(out)); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func printChunk(w io.Writer) func(string) {
	return func(s string) { _, _ = io.WriteString(w, s) }
}

// readAnswer reads option numbers separated by commas or spaces. Any other
// input is taken as a free-text answer. ok is false at end of input.
func readAnswer(in *bufio.Scanner, out io.Writer, numOptions int) (selected []int, freeText string, ok bool) {
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			return nil, "", false
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		sel, err := parseSelection(line, numOptions)
		if err == nil {
			return sel, "", true
		}
		if fields := strings.Fields(strings.ReplaceAll(line, ",", " ")); len(fields) == 0 || isNumber(fields[0]) {
			fmt.Fprintln(out, err)
			continue
		}
		return nil, line, true
	}
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// parseSelection turns "1, 3" into zero-based indices [0 2].
func parseSelection(line string, numOptions int) ([]int, error) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) == 0 {
		return nil, fmt.Errorf("no option chosen")
	}
	selected := make([]int, 0, len(fields))
	seen := make(map[int]bool, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", f)
		}
		if n < 1 || n > numOptions {
			return nil, fmt.Errorf("choose between 1 and %d", numOptions)
		}
		if !seen[n-1] {
			seen[n-1] = true
			selected = append(selected, n-1)
		}
	}
	return selected, nil
}
