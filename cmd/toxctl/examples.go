package main

// exampleComments are the canned demonstration inputs, from friendly to
// clearly hostile, so -examples shows the whole verdict range at once.
var exampleComments = []string{
	"This is a great post, thank you for sharing!",
	"I completely disagree with this opinion.",
	"What a stupid idea, this is terrible!",
	"You're an idiot if you believe this.",
	"I hate people like you, you should disappear.",
}
