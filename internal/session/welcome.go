package session

import "time"

const welcomeText = `Hello! I'm your database performance copilot. I can help you with:

• Analyzing slow queries and suggesting optimizations
• Recommending indexes for better performance
• Explaining execution plans in simple terms
• Identifying bottlenecks in your database schema
• Best practices for query optimization

What would you like to know about your database performance?`

// WelcomeSuggestions are the quick-reply prompts offered with the greeting
var WelcomeSuggestions = []string{
	"How do I speed up my dashboard queries?",
	"What indexes should I add?",
	"Explain this execution plan",
	"Why is my JOIN query slow?",
}

// Welcome returns the greeting used to seed a new chat
func Welcome() Message {
	return Message{
		ID:          "welcome",
		Role:        RoleAssistant,
		Content:     welcomeText,
		Timestamp:   time.Now(),
		Suggestions: append([]string(nil), WelcomeSuggestions...),
	}
}
