package userinteraction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"github.com/fatih/color"
)

var (
	_ output.ProgressPort        = (*Console)(nil)
	_ output.UserInteractionPort = (*Console)(nil)
)

// Console prints run progress for a human watching the terminal.
type Console struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	verbose bool
}

func NewConsole(verbose bool) *Console {
	return NewConsoleWith(os.Stdin, os.Stderr, verbose)
}

func NewConsoleWith(in io.Reader, out io.Writer, verbose bool) *Console {
	return &Console{
		in:      bufio.NewReader(in),
		out:     out,
		verbose: verbose,
	}
}

func (c *Console) AskQuestion(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[ТРЕБУЕТСЯ ВВОД] %s\n> ", question)

	answer, err := c.in.ReadString('\n')
	if err != nil && !(err == io.EOF && answer != "") {
		return "", fmt.Errorf("failed to read user input: %w", err)
	}

	return strings.TrimSpace(answer), nil
}

func (c *Console) ShowState(ctx context.Context, state string, pageIndex int) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	icon, name := stateDisplay(state)
	dim := color.New(color.Faint)
	dim.Fprintf(c.out, "%s %s (страница %d)\n", icon, name, pageIndex)
}

func (c *Console) ShowPage(ctx context.Context, page entity.PageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(c.out, "\n━━━ Страница %d ━━━\n", page.PageIndex)

	dim := color.New(color.Faint)
	dim.Fprintf(c.out, "   %s\n", truncate(page.URL, 100))

	green := color.New(color.FgGreen)
	green.Fprintf(c.out, "✓ Записей: %d (%s)\n", len(page.Records), sourceDisplay(page.Source))

	for i, r := range page.Records {
		if i == 5 {
			dim.Fprintf(c.out, "   … и ещё %d\n", len(page.Records)-5)
			break
		}
		fmt.Fprintf(c.out, "   • %s\n", truncate(r.Name, 80))
	}
}

func (c *Console) ShowNavigation(ctx context.Context, strategy string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !ok {
		red := color.New(color.FgRed)
		red.Fprintln(c.out, "❌ Переход на следующую страницу не удался")
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(c.out, "➡️  Переход: %s\n", strategyDisplay(strategy))
}

func (c *Console) ShowFinished(ctx context.Context, report *entity.RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bold := color.New(color.Bold)
	bold.Fprintf(c.out, "\n🏁 Готово: %s\n", reasonDisplay(report.StoppedReason))
	fmt.Fprintf(c.out, "   Страниц: %d, записей: %d\n", report.PagesProcessed, len(report.Records))

	if report.Error != "" {
		red := color.New(color.FgRed)
		red.Fprintf(c.out, "   Ошибка: %s\n", truncate(report.Error, 300))
	}
}

func stateDisplay(state string) (string, string) {
	displays := map[string][2]string{
		"observing":  {"👁️", "Наблюдение"},
		"detecting":  {"🔍", "Поиск пагинации"},
		"extracting": {"📋", "Извлечение"},
		"deciding":   {"⚖️", "Проверка повторов"},
		"navigating": {"🖱️", "Навигация"},
		"completed":  {"✅", "Завершено"},
		"aborted":    {"⛔", "Прервано"},
	}
	if d, ok := displays[state]; ok {
		return d[0], d[1]
	}
	return "•", state
}

func strategyDisplay(strategy string) string {
	switch strategy {
	case "next_button":
		return "кнопка «Далее»"
	case "page_link":
		return "номер страницы"
	case "infinite_scroll":
		return "бесконечная прокрутка"
	}
	return strategy
}

func sourceDisplay(source entity.ExtractionSource) string {
	switch source {
	case entity.SourceDomHeuristic:
		return "эвристика DOM"
	case entity.SourceLlmRefine:
		return "уточнено LLM"
	case entity.SourceLlmDom:
		return "LLM по DOM"
	case entity.SourceVisionFallback:
		return "скриншот"
	}
	return "нет данных"
}

func reasonDisplay(reason entity.StopReason) string {
	switch reason {
	case entity.StopCompleted:
		return "пагинация не найдена"
	case entity.StopNoMorePagination:
		return "страницы закончились"
	case entity.StopLoopDetected:
		return "обнаружен цикл"
	case entity.StopMaxPagesReached:
		return "достигнут лимит страниц"
	case entity.StopAborted:
		return "прервано"
	}
	return string(reason)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
