package acl

import "strings"

// ExpandPattern 将规则模式中的用户占位符替换为实际身份
// 支持 ${user} / ${username} / ${user_id}
func ExpandPattern(pattern, username string) string {
	pattern = strings.ReplaceAll(pattern, "${user}", username)
	pattern = strings.ReplaceAll(pattern, "${username}", username)
	pattern = strings.ReplaceAll(pattern, "${user_id}", username)
	return pattern
}

// MatchTopic MQTT主题匹配
// 按 "/" 分段：
//   - "+" 匹配恰好一个段
//   - 末尾 "#" 匹配剩余所有段（topic段数 >= pattern段数-1）
//   - "#" 出现在非末尾位置视为非法，永不匹配
func MatchTopic(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			if i != len(patternParts)-1 {
				return false
			}
			return len(topicParts) >= len(patternParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}

	return len(topicParts) == len(patternParts)
}
