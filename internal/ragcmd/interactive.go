package ragcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/dataset"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/runner"
	"github.com/lehigh-university-libraries/ragtest/internal/scanner"
)

var (
	errInterrupted = errors.New("interrupted")
	errQuit        = errors.New("quit")
)

func isExitWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exit", "quit", "q", "退出":
		return true
	}
	return false
}

// NewInteractiveCmd creates the prompt-driven run command
func NewInteractiveCmd(app *App) *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Pick a folder or sheet, categories and counts at a prompt",
		Long: `Prompts for an image folder or question sheet, lets you choose which
categories to test and how many images from each, runs the test and offers
to run another. Ctrl+C stops after the current case and still writes the
report for what finished.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			o.apply(cmd, s)
			return app.Interactive(cmd.Context(), s)
		},
	}
	o.register(cmd)

	return cmd
}

// Interactive loops prompting for a target and selection until the user
// declines another run, types an exit word or input ends. Service settings
// are checked once before the first prompt.
func (a *App) Interactive(ctx context.Context, s *config.Settings) error {
	if err := s.ValidateServices(); err != nil {
		return err
	}
	p := newPrompter(ctx, a.In, a.Out)

	fmt.Fprintln(a.Out, titleStyle.Render("RAG interactive test"))
	fmt.Fprintln(a.Out, mutedStyle.Render(fmt.Sprintf("RAG endpoint: %s  ·  judge: %s / %s", s.RAG.URL, s.LLM.Provider, s.LLM.Model)))

	for {
		err := a.interactiveRound(ctx, p, s)
		switch {
		case errors.Is(err, errInterrupted), errors.Is(err, errQuit), errors.Is(err, io.EOF):
			fmt.Fprintln(a.Out, mutedStyle.Render("Bye."))
			return nil
		case err != nil:
			fmt.Fprintln(a.Out, errorStyle.Render("Error: "+err.Error()))
		}

		again, err := p.confirm("Run another test?", false)
		if err != nil || !again {
			fmt.Fprintln(a.Out, mutedStyle.Render("Bye."))
			return nil
		}
	}
}

func (a *App) interactiveRound(ctx context.Context, p *prompter, base *config.Settings) error {
	s := *base

	target, err := p.ask("Image folder or question sheet (q to quit)", s.ImageDir)
	if err != nil {
		return err
	}
	if isExitWord(target) {
		return errQuit
	}
	if target == "" {
		return fmt.Errorf("a folder or sheet path is required")
	}
	target, err = fetchSheet(ctx, &s, target)
	if err != nil {
		return err
	}

	info, err := statTarget(target)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return a.interactiveSheet(ctx, p, &s, target)
	}

	s.ImageDir = target
	categories, err := scanner.Scan(target)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return fmt.Errorf("no images found under %s", target)
	}
	printCategories(a.Out, categories)

	fmt.Fprintln(a.Out, mutedStyle.Render("Format: <category #>:<count>, e.g. \"1:3 2:2\"; \"all:N\" tests N from every category; Enter tests 1 from each."))
	var selected []scanner.Category
	for {
		input, err := p.ask("Selection", "")
		if err != nil {
			return err
		}
		selected, err = ParseSelection(input, categories, 1)
		if err == nil {
			break
		}
		fmt.Fprintln(a.Out, errorStyle.Render(err.Error()))
	}

	for _, c := range selected {
		fmt.Fprintf(a.Out, "  %s: %d image(s)\n", c.Name, len(c.Images))
	}
	ok, err := p.confirm(fmt.Sprintf("Test %d image(s)?", scanner.Count(selected)), true)
	if err != nil || !ok {
		return err
	}

	_, err = a.Execute(ctx, &s, models.ModeFolder, target, runner.FolderItems(selected))
	return err
}

func (a *App) interactiveSheet(ctx context.Context, p *prompter, s *config.Settings, target string) error {
	if !dataset.IsSheet(target) {
		return fmt.Errorf("%s is not a supported sheet (%v)", target, dataset.SupportedExtensions)
	}

	rows, err := dataset.NewLoader(target).Load()
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no questions found in %s", target)
	}

	withImages := 0
	for _, r := range rows {
		if r.ImagePath != "" {
			withImages++
		}
	}
	fmt.Fprintf(a.Out, "Found %d question(s), %d with an image.\n", len(rows), withImages)
	for i, r := range rows {
		if i == 3 {
			fmt.Fprintln(a.Out, mutedStyle.Render(fmt.Sprintf("  ... %d more", len(rows)-3)))
			break
		}
		fmt.Fprintf(a.Out, "  %d. %s\n", r.Number, truncate(r.Question, 70))
	}

	ok, err := p.confirm("Is this the right sheet?", true)
	if err != nil || !ok {
		return err
	}
	if s.ImageDir == "" {
		s.ImageDir = target
	}

	_, err = a.Execute(ctx, s, models.ModeSheet, target, runner.SheetItems(rows))
	return err
}

// ParseSelection reads "1:3 2:2" (category number:count), "all:N" or an
// empty string (def images from every category). Counts larger than a
// category are clamped. The result keeps scan order.
func ParseSelection(input string, categories []scanner.Category, def int) ([]scanner.Category, error) {
	counts := make(map[int]int)
	fields := strings.FieldsFunc(strings.TrimSpace(input), func(r rune) bool {
		return r == ' ' || r == ',' || r == '，'
	})

	switch {
	case len(fields) == 0:
		for i := range categories {
			counts[i] = def
		}
	case len(fields) == 1 && strings.HasPrefix(strings.ToLower(fields[0]), "all"):
		n := def
		if _, v, ok := strings.Cut(fields[0], ":"); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				return nil, fmt.Errorf("invalid count in %q", fields[0])
			}
			n = parsed
		}
		for i := range categories {
			counts[i] = n
		}
	default:
		for _, f := range fields {
			idx, cnt, hasCount := strings.Cut(f, ":")
			i, err := strconv.Atoi(idx)
			if err != nil || i < 1 || i > len(categories) {
				return nil, fmt.Errorf("category number %q is out of range 1-%d", idx, len(categories))
			}
			n := def
			if hasCount {
				n, err = strconv.Atoi(cnt)
				if err != nil || n < 1 {
					return nil, fmt.Errorf("invalid count in %q", f)
				}
			}
			counts[i-1] = n
		}
	}

	var out []scanner.Category
	for i, c := range categories {
		n, ok := counts[i]
		if !ok {
			continue
		}
		images := c.Images
		if n < len(images) {
			images = images[:n]
		}
		out = append(out, scanner.Category{Name: c.Name, Images: images})
	}
	return out, nil
}

// prompter reads answers line by line, giving up when ctx is cancelled
type prompter struct {
	ctx context.Context
	r   *bufio.Reader
	w   io.Writer
}

func newPrompter(ctx context.Context, r io.Reader, w io.Writer) *prompter {
	return &prompter{ctx: ctx, r: bufio.NewReader(r), w: w}
}

func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.w, "%s [%s]: ", promptStyle.Render(label), def)
	} else {
		fmt.Fprintf(p.w, "%s: ", promptStyle.Render(label))
	}

	type line struct {
		text string
		err  error
	}
	// Channel to receive the line without blocking cancellation
	lineCh := make(chan line, 1)
	go func() {
		text, err := p.r.ReadString('\n')
		lineCh <- line{text: text, err: err}
	}()

	select {
	case <-p.ctx.Done():
		fmt.Fprintln(p.w)
		return "", errInterrupted
	case l := <-lineCh:
		text := strings.TrimSpace(l.text)
		if l.err != nil && text == "" {
			return "", l.err
		}
		if text == "" {
			text = def
		}
		return text, nil
	}
}

func (p *prompter) confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	answer, err := p.ask(fmt.Sprintf("%s (%s)", label, hint), "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes", "是":
		return true, nil
	default:
		return false, nil
	}
}
