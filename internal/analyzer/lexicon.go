package analyzer

// Sentiment lexicons used by the rule-based polarity scorer.

var positiveWords = wordSet(
	"good", "great", "excellent", "amazing", "wonderful", "fantastic", "best", "love", "loved", "loving",
	"beautiful", "perfect", "awesome", "brilliant", "outstanding", "superb", "exceptional", "incredible",
	"magnificent", "marvelous", "pleasant", "delightful", "enjoyable", "happy", "glad", "pleased",
	"satisfied", "terrific", "fabulous", "splendid", "impressive", "remarkable", "positive", "advantage",
	"benefit", "success", "successful", "win", "winning", "winner", "better", "improvement", "improved",
	"exciting", "excited", "enthusiasm", "enthusiastic", "optimistic", "hopeful", "promising", "favorable",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "horrible", "poor", "worst", "hate", "hated", "hating", "ugly", "disgusting",
	"disappointing", "disappointed", "disappointment", "fail", "failed", "failure", "wrong", "problem",
	"problems", "issue", "issues", "error", "errors", "difficult", "difficulty", "hard", "impossible",
	"negative", "unfortunate", "sad", "unhappy", "angry", "frustrated", "frustrating", "annoying", "annoyed",
	"concern", "concerned", "worried", "worry", "fear", "afraid", "scary", "dangerous", "risk", "threat",
	"damage", "damaged", "harm", "harmful", "worse", "loss", "lost", "losing", "loser", "decline", "declined",
)

// Words that signal opinionated rather than factual prose. Used for the
// subjectivity ratio together with the polarity lexicons.
var subjectiveWords = wordSet(
	"think", "thinks", "thought", "believe", "believes", "believed", "feel", "feels", "felt",
	"seem", "seems", "seemed", "appear", "appears", "appeared", "probably", "possibly", "perhaps",
	"maybe", "likely", "unlikely", "clearly", "obviously", "certainly", "definitely", "surely",
	"very", "really", "quite", "rather", "extremely", "incredibly", "totally", "absolutely",
	"should", "must", "ought", "opinion", "argue", "argues", "argued", "claim", "claims", "claimed",
)

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
