package summarizer

// SystemPrompt asks for a short bullet summary.
const SystemPrompt = `You are an AI document assistant.
Summarize the document clearly in bullet points.
Include:
• Purpose of the document
• Key points
• Important names, dates, or IDs
• Any actions or conclusions
Keep it concise and easy to understand.`

func userMessage(text string) string {
	return "Document Content:\n\n" + text
}
