package rag

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/festa/engine/domain"
)

// EmptyReply is returned when no event could be ranked.
const EmptyReply = "지금 질문에 딱 맞는 축제를 찾지 못했어요. 날짜나 지역, 축제 종류를 조금 더 구체적으로 알려주실 수 있을까요?"

const fallbackHeader = "추천 엔진에서 약간의 오류가 있어 LLM 생성 대신 기본 추천만 안내드려요.\n" +
	"지금 질문과 가장 비슷한 축제들은 다음과 같습니다:\n"

// FallbackReply lists events without calling the model.
func FallbackReply(events []domain.Event) string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, fmt.Sprintf("- %s (%s, 장소: %s)", ev.Title(), ev.Period(), ev.Place()))
	}
	return fallbackHeader + strings.Join(lines, "\n")
}
