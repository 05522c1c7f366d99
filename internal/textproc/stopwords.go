package textproc

// fillers are conversational particles common in Indonesian chat that carry
// no meaning for matching. Normalize drops them.
var fillers = map[string]struct{}{
	"sih": {}, "dong": {}, "deh": {}, "kok": {}, "ya": {}, "yah": {}, "yaa": {},
	"nih": {}, "tuh": {}, "lho": {}, "loh": {}, "kah": {}, "nah": {}, "toh": {},
	"mah": {}, "lah": {}, "eh": {}, "ah": {}, "oh": {}, "hmm": {}, "hm": {},
	"gan": {}, "kak": {}, "min": {}, "dok": {}, "sis": {}, "bro": {},
	"wkwk": {}, "hehe": {}, "haha": {}, "plis": {}, "please": {},
}

// stopwords are Indonesian and English function words and pronouns.
var stopwords = map[string]struct{}{
	// Indonesian
	"yang": {}, "dan": {}, "di": {}, "ke": {}, "dari": {}, "ini": {}, "itu": {},
	"untuk": {}, "dengan": {}, "pada": {}, "adalah": {}, "ialah": {}, "saya": {},
	"aku": {}, "gue": {}, "gua": {}, "kamu": {}, "anda": {}, "dia": {}, "kami": {},
	"kita": {}, "mereka": {}, "beliau": {}, "apa": {}, "apakah": {}, "bagaimana": {},
	"gimana": {}, "kenapa": {}, "mengapa": {}, "berapa": {}, "kapan": {},
	"dimana": {}, "mana": {}, "siapa": {}, "bisa": {}, "ada": {}, "tidak": {},
	"tak": {}, "gak": {}, "nggak": {}, "enggak": {}, "bukan": {}, "atau": {},
	"juga": {}, "akan": {}, "sudah": {}, "udah": {}, "belum": {}, "sedang": {},
	"lagi": {}, "jika": {}, "kalau": {}, "kalo": {}, "karena": {}, "karna": {},
	"seperti": {}, "oleh": {}, "agar": {}, "supaya": {}, "harus": {}, "boleh": {},
	"mau": {}, "ingin": {}, "pengen": {}, "sangat": {}, "banget": {}, "para": {},
	"pun": {}, "nya": {}, "saja": {}, "aja": {}, "jadi": {}, "tapi": {},
	"tetapi": {}, "namun": {}, "dalam": {}, "tentang": {}, "sama": {}, "bagi": {},
	"hal": {}, "cara": {}, "punya": {}, "sedikit": {}, "banyak": {}, "semua": {},
	"setiap": {}, "masih": {}, "hanya": {}, "lebih": {}, "kurang": {}, "begitu": {},
	"sini": {}, "situ": {}, "sana": {}, "tersebut": {}, "maka": {}, "bila": {},
	"apabila": {}, "setelah": {}, "sebelum": {}, "sejak": {}, "hingga": {},
	"sampai": {}, "terhadap": {}, "antara": {}, "tolong": {}, "mohon": {},

	// English
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "with": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "from": {}, "have": {},
	"has": {}, "had": {}, "what": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "why": {}, "how": {}, "can": {}, "could": {}, "should": {},
	"would": {}, "will": {}, "does": {}, "did": {}, "you": {}, "your": {},
	"our": {}, "their": {}, "they": {}, "them": {}, "him": {}, "her": {},
	"his": {}, "she": {}, "its": {}, "about": {}, "into": {}, "not": {},
	"but": {}, "all": {}, "any": {}, "some": {}, "very": {}, "just": {},
	"also": {}, "than": {}, "then": {}, "there": {}, "here": {}, "been": {},
	"being": {}, "get": {}, "got": {},
}

// IsStopword reports whether a normalized word is a function word.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

// IsFiller reports whether a normalized word is a conversational particle.
func IsFiller(word string) bool {
	_, ok := fillers[word]
	return ok
}
