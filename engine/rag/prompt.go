package rag

import (
	"context"
	"fmt"

	"github.com/WessleyAI/festa/pkg/solar"
)

// SystemPrompt restricts the model to the supplied event list.
const SystemPrompt = `당신은 서울시 축제·문화행사를 추천해주는 챗봇이다.
사용자의 질문과 주어진 행사 정보만을 근거로, 사용자에게 어울릴 만한 행사 1~3개를 한국어로 추천한다.
항상 다음을 지켜라.
- 행사 이름, 장소, 기간(또는 날짜)을 구체적으로 말한다.
- 왜 이 사용자의 질문과 잘 맞는지 한두 문장으로 이유를 설명한다.
- 제공되지 않은 정보는 지어내지 않는다.
- 서울시 축제/행사와 관련 없는 내용은 답변하지 않는다.`

const userTurnFormat = `다음은 사용자의 질문과, 추천 후보로 사용할 서울시 축제/행사 목록이다.

[사용자 질문]
%s

[행사 목록]
%s

위 행사 정보만을 이용해서, 사용자에게 어울리는 행사 1~3개를 추천하는 답변을 만들어라.`

// UserTurn embeds the question and the rendered context verbatim.
func UserTurn(userMessage, contextText string) string {
	return fmt.Sprintf(userTurnFormat, userMessage, contextText)
}

// Completer sends a chat exchange and returns the first completion.
type Completer interface {
	Complete(ctx context.Context, messages []solar.Message) (string, error)
}

// Generator produces a grounded reply for a question and its context.
type Generator interface {
	Generate(ctx context.Context, userMessage, contextText string) (string, error)
}

// PromptGenerator builds the two-turn grounding exchange. It makes a single
// attempt per call.
type PromptGenerator struct {
	completer    Completer
	systemPrompt string
}

// NewGenerator wraps c with the default system prompt.
func NewGenerator(c Completer) *PromptGenerator {
	return &PromptGenerator{completer: c, systemPrompt: SystemPrompt}
}

// Generate implements Generator.
func (g *PromptGenerator) Generate(ctx context.Context, userMessage, contextText string) (string, error) {
	return g.completer.Complete(ctx, []solar.Message{
		{Role: "system", Content: g.systemPrompt},
		{Role: "user", Content: UserTurn(userMessage, contextText)},
	})
}
