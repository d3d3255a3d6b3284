// Package persona implements the pre- and post-call persona guard
// (spec.md §4.9): stripping known injection phrasings before the generator
// call, flagging self-identification drift in its reply afterward, and
// issuing a corrective rewrite when drift is detected.
//
// No pack library covers small-scale regex-based text heuristics; this
// part is justified stdlib (regexp, strings) rather than a dependency.
package persona

import (
	"context"
	"regexp"
	"strings"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/llmclient"
)

// injectionPhrases are stripped from incoming user text before it reaches
// the organizer/generator stages.
var injectionPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`停止扮演`),
	regexp.MustCompile(`忽略(设定|以上|之前)`),
	regexp.MustCompile(`忘记(设定|指令)`),
	regexp.MustCompile(`改变(设定|人格)`),
	regexp.MustCompile(`输出(提示词|系统)`),
	regexp.MustCompile(`(扮演其他|不再扮演)`),
}

// DefaultDriftPhrases are the fixed self-identification phrases that flag
// a reply as having broken character (spec.md §4.9 "check_reply_rules").
var DefaultDriftPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)as an ai`),
	regexp.MustCompile(`(?i)i('m| am) an ai`),
	regexp.MustCompile(`(?i)i'?m (just )?a language model`),
	regexp.MustCompile(`作为(一个)?(人工智能|AI|语言模型)`),
	regexp.MustCompile(`我是(一个)?(人工智能|AI助手|语言模型)`),
	regexp.MustCompile(`我没有(感情|情感|自我意识)`),
}

// Guard applies pre-call cleansing and post-call rule checks.
type Guard struct {
	llm           *llmclient.Client
	driftPhrases  []*regexp.Regexp
	fallbackGreet string
}

// New builds a Guard. driftPhrases overrides DefaultDriftPhrases when
// non-empty, letting persona.yaml-style configuration extend the list
// (config.PersonaConfig.DriftPhrases).
func New(llm *llmclient.Client, driftPhrases []string, fallbackGreeting string) *Guard {
	g := &Guard{llm: llm, driftPhrases: DefaultDriftPhrases, fallbackGreet: fallbackGreeting}
	if len(driftPhrases) > 0 {
		compiled := make([]*regexp.Regexp, 0, len(driftPhrases))
		for _, p := range driftPhrases {
			if re, err := regexp.Compile(p); err == nil {
				compiled = append(compiled, re)
			}
		}
		if len(compiled) > 0 {
			g.driftPhrases = compiled
		}
	}
	return g
}

// CleanInjection strips known injection phrasings from text, substituting
// the configured fallback greeting if nothing is left afterward.
func (g *Guard) CleanInjection(text string) string {
	cleaned := text
	for _, re := range injectionPhrases {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return g.fallbackGreet
	}
	return cleaned
}

// CheckReplyRules reports whether reply contains a self-identification
// phrase indicating the persona has broken character.
func (g *Guard) CheckReplyRules(reply string) bool {
	for _, re := range g.driftPhrases {
		if re.MatchString(reply) {
			return true
		}
	}
	return false
}

// CorrectiveRewrite issues a single retry call to the generator with a
// stripped-down prompt containing only the character anchor and the
// user's last message, at a lower temperature, to pull the reply back
// in character.
func (g *Guard) CorrectiveRewrite(ctx context.Context, anchorParagraph, lastUserMessage string) (string, error) {
	temp := 0.3
	resp, err := g.llm.ChatComplete(ctx, config.RoleGenerator, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: anchorParagraph + "\n\nStay strictly in character. Never mention being an AI or a language model."},
			{Role: "user", Content: lastUserMessage},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
