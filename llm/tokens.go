package llm

// CharsPerToken is the rough ratio used wherever a provider count is unavailable
const CharsPerToken = 4

// EstimateTokens approximates the token count of text, rounding up
func EstimateTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessages approximates the token count of a message list
func EstimateMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
