package bus

import "fmt"

// Topic patterns for NATS notifications. Subjects carry wake-ups only;
// the agent_messages row is the source of truth.

func TopicInbox(agentID string) string {
	return fmt.Sprintf("agent.%s.inbox", agentID)
}

func TopicResponse(messageID string) string {
	return fmt.Sprintf("message.%s.response", messageID)
}
