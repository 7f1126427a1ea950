package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/pkg/anthropic"
)

// maxPromptRunes bounds the document text sent to the model.
const maxPromptRunes = 60000

const llmSystemPrompt = `You read Chinese CDC respiratory pathogen surveillance bulletins.
Find the table of pathogen positivity rates (usually captioned 表1) with one row per pathogen,
an outpatient ILI column (门急诊流感样病例) and an inpatient SARI column (住院严重急性呼吸道感染病例).
When several week columns exist, use the latest week.

Respond with JSON only, no prose:
{"report_date": "YYYY-MM-DD or empty", "report_week": "YYYY-WW or empty",
 "rows": [{"pathogen": "...", "ili_percent": number or null, "sari_percent": number or null, "notes": "..."}]}

Percentages are plain numbers without %. Use null for "-" or missing cells.
Skip total rows (合计/总计), age-group rows and footnotes.`

// LLM asks an Anthropic model for the bulletin's rows. The period comes
// from the same resolver the heuristic strategy uses; the model's own
// report_date and report_week fill in only when the text has none.
type LLM struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	vocab     *Vocabulary
	periods   *PeriodResolver
}

// NewLLM creates the model-backed strategy.
func NewLLM(client anthropic.Client, model string, maxTokens int, vocab *Vocabulary) *LLM {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLM{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		vocab:     vocab,
		periods:   NewPeriodResolver(),
	}
}

// Name implements Strategy.
func (l *LLM) Name() string { return "llm" }

type llmRow struct {
	Pathogen    string `json:"pathogen"`
	ILIPercent  any    `json:"ili_percent"`
	SARIPercent any    `json:"sari_percent"`
	Notes       string `json:"notes"`
}

type llmAnswer struct {
	ReportDate string   `json:"report_date"`
	ReportWeek string   `json:"report_week"`
	Rows       []llmRow `json:"rows"`
}

// Extract implements Strategy.
func (l *LLM) Extract(ctx context.Context, doc model.Document) (Result, error) {
	text := NormalizeText(doc.Text)

	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(llmSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: truncateRunes(text, maxPromptRunes)},
		},
		Prefill: "{",
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "extract: llm request for %s", doc.Name)
	}
	resp.Usage.LogCost(l.model, doc.Name)
	if resp.Truncated() {
		return Result{}, eris.Errorf("extract: llm answer for %s truncated at %d tokens", doc.Name, l.maxTokens)
	}

	var ans llmAnswer
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &ans); err != nil {
		return Result{}, eris.Wrapf(err, "extract: parse llm answer for %s", doc.Name)
	}

	period := l.periods.Resolve(text, doc.Name)
	if !period.Usable() {
		period = answerPeriod(ans)
	}

	ref := model.FormatDate(period.Reference)
	end := model.FormatDate(period.TargetEnd)
	week := period.WeekLabel()

	var records []model.SurveillanceRecord
	for _, row := range ans.Rows {
		name := strings.Join(strings.Fields(row.Pathogen), " ")
		if name == "" || l.vocab.Stopped(name) {
			continue
		}
		records = append(records, model.SurveillanceRecord{
			ReferenceDate: ref,
			TargetEndDate: end,
			ReportWeek:    week,
			Pathogen:      name,
			ILIPercent:    anyPercent(row.ILIPercent),
			SARIPercent:   anyPercent(row.SARIPercent),
			Notes:         strings.TrimSpace(row.Notes),
		})
	}
	if len(records) == 0 {
		return Result{Period: period}, ErrNoRecords
	}
	return Result{Records: records, Period: period}, nil
}

func answerPeriod(ans llmAnswer) model.ReportPeriod {
	var p model.ReportPeriod
	if t, ok := model.ParseDate(ans.ReportDate); ok {
		p.Reference = t
	}
	var y, w int
	if _, err := fmt.Sscanf(strings.TrimSpace(ans.ReportWeek), "%d-%d", &y, &w); err == nil && w >= 1 && w <= 53 {
		p.Year, p.Week = y, w
	}
	p.Matcher = "llm"
	return p
}

// anyPercent accepts a JSON number, a numeric string such as "12.3%", or null.
func anyPercent(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		return ParsePercent(x)
	}
	return nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
