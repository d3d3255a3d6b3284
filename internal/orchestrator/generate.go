package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/llmclient"
)

const trivialSummaryEmpty = "首次对话，暂无历史互动"
const trivialSummaryFallback = "摘要生成失败，按现有对话继续"

const maxSummaryRunes = 100
const maxKnowledgeSummaryRunes = 150

// summarize runs stage 5: the organizer model condenses ret.memoryText plus
// the current message into a <=100 character summary. It returns
// (summary, nil) on success, or (trivialSummary, nil)
// when the call fails and cfg.Organizer.SkipOnFailure is set. With
// SkipOnFailure unset, a failure is returned as an error so Handle can
// fall back to the fixed fallback reply instead of fabricating context.
func (o *Orchestrator) summarize(ctx context.Context, t Turn, cleanText string, ret retrieval) (string, error) {
	emptyContext := ret.memoryText == "" && ret.graphText == ""

	start := time.Now()
	prompt := fmt.Sprintf("长期记忆:\n%s\n\n知识图谱线索:\n%s\n\n当前消息: %s",
		ret.memoryText, ret.graphText, cleanText)
	resp, err := o.deps.LLM.ChatComplete(ctx, config.RoleOrganizer, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: "你负责把检索到的长期记忆和当前消息浓缩成不超过100字的中文摘要，只输出摘要本身。"},
			{Role: "user", Content: prompt},
		},
	})
	o.trace("organizer", t.UserID, prompt, resp, start, err)
	if err != nil {
		if !o.cfg.Organizer.SkipOnFailure {
			return "", fmt.Errorf("orchestrator: organizer: %w", err)
		}
		if emptyContext {
			return trivialSummaryEmpty, nil
		}
		return trivialSummaryFallback, nil
	}
	if resp.Content == "" && emptyContext {
		return trivialSummaryEmpty, nil
	}
	return truncateRunes(resp.Content, maxSummaryRunes), nil
}

// condenseKnowledge runs stage 6: if the knowledge organizer role is
// configured and stage 4b returned content, condense it to <=150 chars
// relevant to the query; otherwise the raw hits text passes through as-is.
func (o *Orchestrator) condenseKnowledge(ctx context.Context, cleanText, kbText string) string {
	if kbText == "" {
		return ""
	}
	if !o.deps.LLM.HasRole(config.RoleKnowledgeOrganizer) {
		return kbText
	}
	start := time.Now()
	resp, err := o.deps.LLM.ChatComplete(ctx, config.RoleKnowledgeOrganizer, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: "你负责把检索到的知识库片段浓缩成不超过150字、与当前问题相关的中文摘要，只输出摘要本身。"},
			{Role: "user", Content: fmt.Sprintf("问题: %s\n\n知识片段:\n%s", cleanText, kbText)},
		},
	})
	o.trace("knowledge_organizer", "", kbText, resp, start, err)
	if err != nil {
		return kbText
	}
	return truncateRunes(resp.Content, maxKnowledgeSummaryRunes)
}

// generate runs stage 8: assembles the full system prompt from the
// persona fragments, memory summary, recent dialogue, knowledge summary,
// and affection-derived temperature, and calls the generator role.
func (o *Orchestrator) generate(ctx context.Context, t Turn, memSummary, recentBlock, kbSummary string, temperature float64) (string, error) {
	p := o.cfg.Persona
	level, levelName := 0, ""
	if o.deps.Affection != nil {
		if info, err := o.deps.Affection.GetInfo(ctx, t.UserID); err == nil {
			level, levelName = info.Level, info.LevelName
		}
	}

	var sysPrompt strings.Builder
	sysPrompt.WriteString(p.RoleProfile)
	sysPrompt.WriteString("\n\n表达风格: ")
	sysPrompt.WriteString(p.ExpressionStyle)
	fmt.Fprintf(&sysPrompt, "\n\n当前时间: %s\n用户: %s", time.Now().Format("2006-01-02 15:04"), t.UserName)
	if t.isGroup() {
		fmt.Fprintf(&sysPrompt, "\n群聊: %s", t.GroupName)
	}
	fmt.Fprintf(&sysPrompt, "\n记忆摘要: %s", memSummary)
	if kbSummary != "" {
		fmt.Fprintf(&sysPrompt, "\n知识库: %s", kbSummary)
	}
	fmt.Fprintf(&sysPrompt, "\n最近对话:\n%s", recentBlock)
	sysPrompt.WriteString("\n\n对话规则: ")
	sysPrompt.WriteString(p.ConversationRules)
	fmt.Fprintf(&sysPrompt, "\n好感等级: %d (%s)", level, levelName)

	start := time.Now()
	temp := temperature
	resp, err := o.deps.LLM.ChatComplete(ctx, config.RoleGenerator, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: sysPrompt.String()},
			{Role: "user", Content: t.UserText},
		},
		Temperature: &temp,
	})
	o.trace("generator", t.UserID, t.UserText, resp, start, err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
