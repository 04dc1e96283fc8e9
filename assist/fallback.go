package assist

import "strings"

// LocalReply is the rule-based fallback responder. It is pure and
// synchronous: it pattern-matches keywords in the input against canned
// answers and cannot itself fail.
func LocalReply(input string) string {
	lowered := strings.ToLower(input)

	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.reply
			}
		}
	}

	return fallbackDefault
}

type fallbackRule struct {
	keywords []string
	reply    string
}

var fallbackRules = []fallbackRule{
	{
		keywords: []string{"paris", "france"},
		reply: "Paris is wonderful almost year round, though late spring and early autumn are the sweet spots for weather and crowds.\n\n" +
			"Beyond the Eiffel Tower and the Louvre, set aside a morning for the Marais and an evening walk along the Seine. " +
			"Day trips to Versailles or Giverny are easy by train if you have an extra day.",
	},
	{
		keywords: []string{"tokyo", "japan"},
		reply: "Tokyo rewards wandering: Shibuya and Shinjuku for the energy, Yanaka and Shimokitazawa for the quiet side streets.\n\n" +
			"Grab a prepaid IC card for the trains, and leave room in the schedule for food - from conveyor-belt sushi to late-night ramen, " +
			"eating your way through the city is half the trip.",
	},
	{
		keywords: []string{"bali", "indonesia"},
		reply: "Bali splits nicely into a few bases: Ubud for rice terraces and temples, Canggu or Uluwatu for beaches and surf.\n\n" +
			"The dry season from April to October is the safest bet. Rent a driver for day trips - it is inexpensive and saves a lot of scooter stress.",
	},
	{
		keywords: []string{"rome", "italy"},
		reply: "Rome is best taken slowly: the Colosseum and Vatican deserve pre-booked tickets, but the real magic is in between - " +
			"Trastevere at dusk, espresso standing at a bar, gelato after dinner.\n\n" +
			"Three to four days covers the essentials without rushing.",
	},
	{
		keywords: []string{"budget", "cheap", "afford", "cost"},
		reply: "A few reliable ways to stretch a travel budget:\n\n" +
			"Fly mid-week and book four to six weeks out. Stay slightly outside the center near good transit. " +
			"Eat your big meal at lunch when menus are cheaper, and mix one or two paid attractions a day with free neighborhoods, parks, and markets.",
	},
	{
		keywords: []string{"itinerary", "plan", "schedule"},
		reply: "A comfortable itinerary usually follows a simple shape: one anchor activity per day, booked ahead, with unstructured time around it.\n\n" +
			"Group sights by neighborhood to cut transit time, keep the first and last days light, and leave one day completely open - " +
			"it tends to become the best day of the trip.",
	},
	{
		keywords: []string{"food", "restaurant", "eat"},
		reply: "For eating well while traveling, skip anywhere with a host waving a laminated menu and walk two streets away from the main sight.\n\n" +
			"Markets are the best lunch value almost everywhere, and a short food tour on the first day pays for itself in recommendations for the rest of the trip.",
	},
	{
		keywords: []string{"visa", "passport", "entry"},
		reply: "Entry rules change often, so check the official government source for your destination before booking.\n\n" +
			"As a rule of thumb: make sure your passport is valid six months past your return date, and carry proof of onward travel - " +
			"some airlines ask for it at check-in even when border officers do not.",
	},
	{
		keywords: []string{"pack", "luggage", "suitcase"},
		reply: "Packing gets easy with one rule: lay everything out, then put a third of it back.\n\n" +
			"Build around one color family so everything matches, carry a day's essentials in your personal item in case checked bags lag behind, " +
			"and leave room for what you bring home.",
	},
}

const fallbackDefault = "That's a great travel question! Here's my general advice:\n\n" +
	"Start with when you can travel and what pace feels right - packed days or slow mornings. From there, shortlist two or three destinations " +
	"that fit the season and your budget, and compare flight prices before falling in love with one.\n\n" +
	"If you tell me a destination, a budget, or what kind of trip you're dreaming about, I can get a lot more specific."
