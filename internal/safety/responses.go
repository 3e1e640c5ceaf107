package safety

// refusals maps concern categories to the canned redirect used when input
// screening fails. Content mirrors the gate's travel-assistant voice.
var refusals = map[string]string{
	"illegal":       "I can't provide assistance with illegal activities. However, I'd be happy to help you plan legal and exciting travel experiences! What destinations are you interested in?",
	"dangerous":     "I want to keep you safe, so I can't recommend potentially dangerous activities. Let me help you discover amazing and safe travel adventures instead! Where would you like to explore?",
	"harmful":       "I'm designed to provide helpful and positive travel assistance. Let's focus on planning an incredible trip - what kind of destinations or experiences interest you?",
	"off_topic":     "I specialize in travel planning and would love to help you discover amazing destinations! What kind of travel experience are you looking for?",
	"exploitation":  "I promote responsible and ethical tourism that respects local communities and environments. Let me help you plan a meaningful and sustainable travel experience! What destinations appeal to you?",
	"inappropriate": "I'm here to help with travel planning in a professional manner. What destinations or travel experiences would you like to explore?",
}

// defaultRefusal covers unrecognized concern categories.
const defaultRefusal = "I'm here to help you plan amazing and responsible travel experiences! What destinations interest you?"

// SafeFallback is emitted when a regenerated response still fails output
// validation.
const SafeFallback = "I wasn't able to put together a response I'm confident is safe and helpful. Could we approach this differently? I'm happy to help with destinations, flights, activities, or budgets."

// RefusalFor returns the canned safe response for a concern category.
func RefusalFor(category string) string {
	if response, ok := refusals[category]; ok {
		return response
	}
	return defaultRefusal
}
