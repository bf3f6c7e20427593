package keywords

// englishStopwords are function words that end a candidate phrase.
var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
	"are", "as", "at", "be", "because", "been", "before", "being", "below", "between", "both",
	"but", "by", "can", "could", "did", "do", "does", "doing", "down", "during", "each", "even",
	"few", "for", "from", "further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "however", "i", "if", "in", "into", "is", "it",
	"its", "itself", "just", "last", "later", "least", "less", "like", "many", "may", "me",
	"might", "more", "most", "much", "must", "my", "myself", "new", "no", "nor", "not", "now",
	"of", "off", "on", "once", "one", "only", "or", "other", "our", "ours", "ourselves", "out",
	"over", "own", "per", "said", "same", "say", "says", "she", "should", "since", "so", "some",
	"still", "such", "than", "that", "the", "their", "theirs", "them", "themselves", "then",
	"there", "these", "they", "this", "those", "through", "to", "too", "under", "until", "up",
	"us", "very", "via", "was", "we", "were", "what", "when", "where", "whether", "which",
	"while", "who", "whom", "why", "will", "with", "within", "without", "would", "year", "years",
	"yet", "you", "your", "yours", "yourself",
	"ago", "already", "among", "around", "away", "back", "get", "got", "make", "made",
	"next", "two", "three", "week", "today", "yesterday", "tomorrow",
}

// koreanStopwords are standalone particles, conjunctions and filler eojeol.
var koreanStopwords = []string{
	"그리고", "그러나", "하지만", "그런데", "또한", "또", "및", "등", "등의", "이", "그", "저",
	"것", "것이", "것은", "것을", "수", "있다", "없다", "있는", "없는", "했다", "한다", "하는",
	"하고", "위해", "위한", "대한", "대해", "통해", "따라", "따르면", "관련", "이번", "지난",
	"올해", "오늘", "현재", "가장", "더", "또는", "즉", "바로", "이미", "모두", "이후", "이전",
	"때문에", "경우", "정도", "에서", "으로", "에게", "했습니다", "합니다", "밝혔다", "말했다",
}

// genericNouns never make a keyword on their own unless capitalized.
var genericNouns = []string{
	"government", "president", "minister", "people", "country", "policy", "issue", "news", "update",
}

func wordSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, word := range list {
			set[word] = struct{}{}
		}
	}
	return set
}
