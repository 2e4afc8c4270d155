package userinteraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"listing-agent/internal/domain/entity"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestAskQuestion(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleWith(strings.NewReader("  список компаний  \n"), &out, false)

	answer, err := c.AskQuestion(context.Background(), "Что извлечь?")
	require.NoError(t, err)

	assert.Equal(t, "список компаний", answer)
	assert.Contains(t, out.String(), "Что извлечь?")
}

func TestAskQuestion_NoTrailingNewline(t *testing.T) {
	c := NewConsoleWith(strings.NewReader("banks"), &bytes.Buffer{}, false)

	answer, err := c.AskQuestion(context.Background(), "?")
	require.NoError(t, err)
	assert.Equal(t, "banks", answer)

	_, err = c.AskQuestion(context.Background(), "?")
	assert.Error(t, err)
}

func TestShowPage(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleWith(strings.NewReader(""), &out, false)

	var records []entity.ExtractionRecord
	for i := 0; i < 7; i++ {
		records = append(records, entity.ExtractionRecord{Name: fmt.Sprintf("Company %d", i)})
	}
	c.ShowPage(context.Background(), entity.PageResult{PageIndex: 2, URL: "https://example.com/?page=2", Records: records, Source: entity.SourceLlmRefine})

	s := out.String()
	assert.Contains(t, s, "Страница 2")
	assert.Contains(t, s, "Записей: 7 (уточнено LLM)")
	assert.Contains(t, s, "Company 4")
	assert.NotContains(t, s, "Company 5")
	assert.Contains(t, s, "и ещё 2")
}

func TestShowState_OnlyWhenVerbose(t *testing.T) {
	var quiet, loud bytes.Buffer

	NewConsoleWith(strings.NewReader(""), &quiet, false).ShowState(context.Background(), "observing", 1)
	NewConsoleWith(strings.NewReader(""), &loud, true).ShowState(context.Background(), "observing", 1)

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "Наблюдение (страница 1)")
}

func TestShowNavigationAndFinished(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleWith(strings.NewReader(""), &out, false)

	c.ShowNavigation(context.Background(), "next_button", true)
	c.ShowNavigation(context.Background(), "", false)
	c.ShowFinished(context.Background(), &entity.RunReport{
		PagesProcessed: 3,
		Records:        make([]entity.ExtractionRecord, 12),
		StoppedReason:  entity.StopAborted,
		Error:          "aborted: context canceled",
	})

	s := out.String()
	assert.Contains(t, s, "кнопка «Далее»")
	assert.Contains(t, s, "не удался")
	assert.Contains(t, s, "Готово: прервано")
	assert.Contains(t, s, "Страниц: 3, записей: 12")
	assert.Contains(t, s, "context canceled")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "абв...", truncate("абвгд", 3))
	assert.Equal(t, "abc", truncate("abc", 3))
}
