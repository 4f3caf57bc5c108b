// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import "fmt"

// Line is one scripted utterance of a simulated call. Pause is the
// delay in seconds before the line is spoken.
type Line struct {
	Role  string
	Text  string
	Pause float64
}

// negotiationScript builds a retention-department transcript for a
// rate negotiation call.
func negotiationScript(userName string, currentRate, targetRate float64, competitorIntel, confirmation string) []Line {
	return []Line{
		{"agent", fmt.Sprintf(
			"Hi, this is Haggle calling on behalf of %[1]s. "+
				"I'm reaching out about account holder %[1]s's internet service. "+
				"Could I speak with someone in your retention or loyalty department?",
			userName), 1.5},
		{"human",
			"Thank you for calling Comcast. This is Marcus in our customer loyalty department. " +
				"I can see the account here. How can I help you today?", 2.0},
		{"agent", fmt.Sprintf(
			"Thanks Marcus. I'm calling because %[1]s's monthly bill has increased "+
				"from $55 to $%[2].0f per month, which is a significant jump. "+
				"%[1]s has been a loyal Comcast customer and we'd like to discuss "+
				"getting the rate back to something more reasonable.",
			userName, currentRate), 1.5},
		{"human", fmt.Sprintf(
			"I understand the concern. Let me pull up the account details. "+
				"I can see the promotional rate expired last month, which is why the bill "+
				"went up to the standard rate of $%.0f. Unfortunately that is "+
				"our current pricing for that tier.",
			currentRate), 2.0},
		{"agent", fmt.Sprintf(
			"I appreciate you explaining that, Marcus. However, I've done some research "+
				"on current market rates. %s "+
				"Given that %s has been with Comcast for over two years, "+
				"we were hoping you could offer a retention rate closer to $%.0f per month.",
			competitorIntel, userName, targetRate), 1.8},
		{"human",
			"I understand, and we definitely value long-term customers. " +
				"Let me see what I have available in our retention offers... " +
				"I can offer a 12-month promotional rate. Give me just a moment.", 2.5},
		{"agent",
			"Of course, take your time. We really want to keep this service " +
				"and avoid having to switch providers.", 1.0},
		{"human", fmt.Sprintf(
			"Okay, I've got good news. I can apply our loyalty discount which brings the "+
				"monthly rate down to $%.0f per month for the next 12 months. "+
				"Same speed tier, same service. Would that work?",
			targetRate), 2.0},
		{"agent", fmt.Sprintf(
			"$%.0f per month for 12 months, that works perfectly. "+
				"%s will be happy with that. Could I get a confirmation number "+
				"for this rate change?",
			targetRate, userName), 1.5},
		{"human", fmt.Sprintf(
			"Absolutely. Your confirmation number is %s. "+
				"The new rate of $%.0f per month will take effect on your next "+
				"billing cycle. Is there anything else I can help with today?",
			confirmation, targetRate), 1.8},
		{"agent", fmt.Sprintf(
			"No, that's everything. Thank you for your help, Marcus. "+
				"Just to confirm, confirmation number %s, "+
				"new rate $%.0f per month, effective next billing cycle. "+
				"Have a great day.",
			confirmation, targetRate), 1.2},
		{"human",
			"You're welcome. Thank you for being a loyal Comcast customer. Goodbye!", 1.0},
	}
}

// cancellationScript builds a service cancellation transcript.
func cancellationScript(userName, company, serviceType, confirmation string) []Line {
	return []Line{
		{"agent", fmt.Sprintf(
			"Hello, this is Haggle calling on behalf of %[1]s. "+
				"I need to process a cancellation for %[1]s's %[2]s membership.",
			userName, serviceType), 1.5},
		{"human", fmt.Sprintf(
			"Hi, thanks for calling %s. I can help you with that. "+
				"Can you confirm the account holder's name?",
			company), 1.8},
		{"agent", fmt.Sprintf("Yes, the account holder is %s.", userName), 1.0},
		{"human", fmt.Sprintf(
			"Thank you. I see %s's account. I do need to let you know "+
				"there's a cancellation process. Is there anything we can do to keep "+
				"the membership active? We could offer a reduced rate.",
			userName), 2.0},
		{"agent", fmt.Sprintf(
			"I appreciate the offer, but %s has made the decision to cancel. "+
				"They haven't used the membership in several months.",
			userName), 1.5},
		{"human", fmt.Sprintf(
			"I understand. Let me process that cancellation now. "+
				"The membership will end at the end of the current billing cycle. "+
				"Your confirmation number is %s.",
			confirmation), 2.2},
		{"agent", fmt.Sprintf(
			"Thank you. Confirmation number %s, got it. "+
				"And there will be no further charges after the current cycle?",
			confirmation), 1.2},
		{"human",
			"That's correct. No further charges. Is there anything else?", 1.5},
		{"agent", "That's all. Thank you for your help.", 0.8},
	}
}

// consultScript is the full pre-scripted user consult conversation
// used by the consult simulation.
var consultScript = []Line{
	{"agent",
		"Hi Neel, this is Haggle. I've finished scanning your accounts and found " +
			"a couple of things worth reviewing. Do you have two minutes?", 1.5},
	{"user", "Yeah, go ahead.", 1.8},
	{"agent",
		"Great. So first: your Comcast bill jumped from $55 to $85 last month, " +
			"that's a 54% increase. Their promotional rate expired. " +
			"T-Mobile 5G Home is $50 and AT&T Fiber is $55 in your area right now.", 2.2},
	{"user", "Yeah I noticed that. That's annoying.", 1.5},
	{"agent",
		"I can call their retention department and negotiate it back down to around $65. " +
			"Customers who mention competitor rates usually get a 12-month loyalty discount. " +
			"Should I go ahead and do that?", 2.0},
	{"user", "Yes, please do that.", 1.2},
	{"agent",
		"Done, I'll handle Comcast. Second thing: you're paying $25 a month for Planet Fitness. " +
			"How often are you actually going these days?", 2.0},
	{"user", "Honestly, maybe twice a month.", 1.5},
	{"agent",
		"So that works out to $12.50 per visit. A day pass at Planet Fitness is $10. " +
			"You'd actually save $2.50 every visit just by walking in instead of having a membership. " +
			"Want me to cancel it?", 2.5},
	{"user", "Yeah, cancel it. I keep meaning to go more but it's not happening.", 1.8},
	{"agent",
		"Understood. I'll cancel that too. So in total you're looking at saving $45 a month, " +
			"$540 a year. I'll make both calls right now and send you an email when everything's done.", 2.0},
	{"user", "That's great, thanks.", 1.2},
	{"agent", "You're welcome. I'll take care of it. Talk soon.", 1.0},
}

// demoConsultScript is the shorter consult used by the full demo run,
// where the live voice call follows right after.
var demoConsultScript = []Line{
	{"agent",
		"Hi Neel, this is Haggle. I've finished scanning your accounts and found " +
			"some savings opportunities. Do you have a minute?", 1.5},
	{"user", "Yeah, go ahead.", 1.2},
	{"agent",
		"Your Comcast bill jumped from $55 to $85 last month, a 54% increase. " +
			"The promotional rate expired. T-Mobile 5G Home Internet is $50 and " +
			"AT&T Fiber is $55 in your area right now.", 2.0},
	{"user", "Yeah I noticed that. That's annoying.", 1.2},
	{"agent",
		"I can call their retention department and negotiate it down to around $65. " +
			"Customers who mention competitor rates usually get a 12-month loyalty discount. " +
			"Should I make the call?", 1.8},
	{"user", "Yes, do it.", 1.0},
	{"agent",
		"On it. I'll call Comcast retention now and get your rate back down. " +
			"Stand by, I'll update you when it's done.", 1.2},
}
