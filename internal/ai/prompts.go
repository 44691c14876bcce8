package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickwarner/nest/internal/models"
)

var imagePrompts = map[models.Category]string{
	models.CategoryPothole: `Analyze this image and determine if it shows a pothole on a road or sidewalk.
If it does, estimate the severity (low, medium, high) based on size and depth.`,
	models.CategoryCleanliness: `Analyze this image and determine if it shows garbage, debris, or unclean areas.
If it does, estimate the severity (low, medium, high) based on amount and type.`,
	models.CategoryWater: `Analyze this image and determine if it shows a water leak, flooding, or water damage.
If it does, estimate the severity (low, medium, high) based on extent and potential damage.`,
	models.CategoryElectricity: `Analyze this image and determine if it shows electrical issues like downed wires, damaged poles, or broken streetlights.
If it does, estimate the severity (low, medium, high) based on safety risk.`,
}

const defaultImagePrompt = `Analyze this image and describe what you see. Is there any visible issue or problem?`

// ImagePrompt builds the analysis prompt for an image of the given category.
// The image is inlined as a base64 data URI.
func ImagePrompt(category models.Category, contentType, base64Image string) string {
	p, ok := imagePrompts[category]
	if !ok {
		p = defaultImagePrompt
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return fmt.Sprintf("%s\nAnswer yes or no first.\n\nImage: data:%s;base64,%s", p, contentType, base64Image)
}

const chatSystemPrompt = `You are an AI assistant for the N.E.S.T. (Neighborhood Emergency & Safety Tool) platform.
Your role is to help users with community issues, report problems, and provide information about services.

Available services:
- Water issues (leaks, pressure, quality, outages)
- Electricity issues (outages, fluctuations, streetlights, downed wires)
- Noise complaints (music, parties, construction, vehicles, alarms)
- Maintenance requests (potholes, sidewalks, playground equipment, trash)

Be helpful, concise, and guide users to the appropriate reporting forms when needed.
If there's an emergency situation, advise users to use the SOS button or call emergency services.`

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPrompt renders the system prompt, prior turns and the new message.
func ChatPrompt(history []ChatMessage, message string, now time.Time) string {
	var b strings.Builder
	b.WriteString(chatSystemPrompt)
	fmt.Fprintf(&b, "\n\nCurrent date: %s\n\n", now.Format("2006-01-02"))
	for _, m := range history {
		speaker := "Assistant"
		if m.Role == "user" {
			speaker = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", message)
	return b.String()
}
