package message

import "marketmate/backend/internal/domain"

const offerPlaceholder = "{offer}"

var templates = map[domain.Intent]map[domain.Style][]string{
	domain.IntentInitial: {
		domain.StylePolite: {
			"Hi! I'm really interested in this item. Would you consider {offer} if I can pick up today?",
			"Hey there! Love what you're selling. Any chance you'd take {offer}? I can be flexible on pickup time.",
			"Hi! This looks great. I was hoping to spend around {offer} - would that work for you?",
		},
		domain.StyleNeutral: {
			"Interested in this. Would you take {offer}?",
			"Hi, I can offer {offer} for this. Let me know.",
			"Is {offer} a price you'd consider?",
		},
		domain.StyleFirm: {
			"I'll give you {offer} cash today.",
			"I can do {offer}. That's my budget for this.",
			"{offer} is what I can offer. Pickup whenever works for you.",
		},
	},
	domain.IntentCounter: {
		domain.StylePolite: {
			"I appreciate your response! {offer} is the highest I can go right now. Totally understand if that doesn't work for you.",
			"Thanks for getting back to me. Would {offer} work? I'm trying to stay within my budget.",
			"I hear you. Best I can do is {offer}. Let me know what you think!",
		},
		domain.StyleNeutral: {
			"I can go up to {offer}, that's my max.",
			"{offer} is my final offer. Let me know.",
			"Best I can do is {offer}.",
		},
		domain.StyleFirm: {
			"{offer} is my limit. Take it or leave it.",
			"Can't go higher than {offer}.",
			"My max is {offer}. That's firm.",
		},
	},
	domain.IntentAccept: {
		domain.StylePolite: {
			"That works for me! When and where works best for you to meet?",
			"Deal! I'm excited. What time works for pickup?",
			"Perfect, I'll take it! Let me know the best time to come by.",
		},
		domain.StyleNeutral: {
			"Sounds good. When can I pick up?",
			"Deal. What's your availability?",
			"Works for me. When and where?",
		},
		domain.StyleFirm: {
			"Agreed. What's the pickup address?",
			"Done. Time and place?",
			"I'll take it. Details?",
		},
	},
	domain.IntentWalkaway: {
		domain.StylePolite: {
			"No worries at all - thanks for getting back to me. If anything changes, feel free to reach out!",
			"I understand, that's a bit above my budget right now. Best of luck with the sale!",
			"Thanks for your time! If you don't find a buyer at that price, I'd still be interested at {offer}.",
		},
		domain.StyleNeutral: {
			"Thanks anyway. Good luck with the sale.",
			"That's above my budget. Thanks though.",
			"Can't do that price. Thanks for responding.",
		},
		domain.StyleFirm: {
			"That's too high for me. Good luck.",
			"Pass. Thanks anyway.",
			"Not at that price. Thanks.",
		},
	},
}

var confidenceByIntent = map[domain.Intent]domain.Confidence{
	domain.IntentInitial:  domain.ConfidenceHigh,
	domain.IntentAccept:   domain.ConfidenceHigh,
	domain.IntentCounter:  domain.ConfidenceMedium,
	domain.IntentWalkaway: domain.ConfidenceMedium,
}

// Templates returns the candidate texts for an intent and style, placeholders intact.
func Templates(intent domain.Intent, style domain.Style) []string {
	byStyle, ok := templates[intent]
	if !ok {
		return nil
	}
	out := make([]string, len(byStyle[style]))
	copy(out, byStyle[style])
	return out
}
