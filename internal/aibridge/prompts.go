package aibridge

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

const (
	spiderSystemInstruction = "You are a world-class Scrapy engineer. You write resilient spiders " +
		"and, when asked, pipelines that deliver results to Google Drive automatically."
	refactorSystemInstruction = "You are an automated code repair agent. You fix Scrapy spiders " +
		"by analyzing their error logs."
)

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"suggested_name":    {Type: genai.TypeString},
		"frequency_hint":    {Type: genai.TypeString},
		"fields_to_extract": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"difficulty_rating": {Type: genai.TypeNumber},
	},
}

func intentPrompt(intent, targetURL, language string) string {
	return fmt.Sprintf("Analyze this web scraping intent for URL: %s. Intent: %s. "+
		"Provide a structured JSON output with fields: suggested_name (in %s), "+
		"frequency_hint (e.g., daily), fields_to_extract (array of strings), "+
		"and difficulty_rating (1-10).", targetURL, intent, language)
}

func spiderPrompt(req scraping.SpiderRequest, language string) string {
	driveLogic := "Standard CSV export pipeline."
	if req.SaveToDrive {
		driveLogic = "Include a Scrapy Pipeline that exports results to a CSV and uses the " +
			"Google Drive API (pydrive2) to upload the file automatically after the crawl finishes."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a production-grade Scrapy spider for %s.\n", req.TargetURL)
	fmt.Fprintf(&b, "Intent: %s.\n", req.Intent)
	fmt.Fprintf(&b, "Extract fields: %s.\n", strings.Join(req.Fields, ", "))
	b.WriteString(driveLogic + "\n")
	b.WriteString("Implement robust error handling, pagination, and bot-evasion headers.\n")
	fmt.Fprintf(&b, "Return ONLY clean Python code. (Comments can be in %s if helpful).", language)
	return b.String()
}

func mockResultsPrompt(code, intent string) string {
	return fmt.Sprintf("Based on this Scrapy spider code and intent:\nIntent: %s\nCode: %s\n"+
		"Generate %d realistic mock data records as they would appear in a CSV/JSON output. "+
		"Return a JSON array of flat objects whose values are strings. Make the data look very "+
		"realistic according to the target site and intent.", intent, code, scraping.MaxPreviewRows)
}

func refactorPrompt(req scraping.RefactorRequest, language string) string {
	var b strings.Builder
	b.WriteString("Refactor this Scrapy spider code.\n")
	fmt.Fprintf(&b, "Original Intent: %s\n", req.Intent)
	b.WriteString("Current Code:\n```python\n" + req.Code + "\n```\n")
	b.WriteString("Logs:\n```\n" + req.Logs + "\n```\n")
	b.WriteString("Fix selector problems, bot detection, and site structure changes.\n")
	if req.SaveToDrive {
		b.WriteString("The project exports to Google Drive: keep or add a pydrive2 upload pipeline.\n")
	}
	fmt.Fprintf(&b, "Return ONLY the updated Python code. (Comments can be in %s).", language)
	return b.String()
}

func analyzeLogPrompt(logs, language string) string {
	return fmt.Sprintf("Analyze the following Scrapy log. If there are 403 errors or selector "+
		"problems, search the web for the latest fixes. Summarize in %s:\n%s", language, logs)
}

func chatSystemInstruction(language string) string {
	return fmt.Sprintf("You are the AI-Scrapy Assistant. Help users manage ScrapydWeb, write Scrapy "+
		"code and analyze data. Answer in %s, politely and in a friendly tone.", language)
}
