package similarity

// synonymGroups lists interchangeable Indonesian and English medical terms.
// Entries are normalized (lowercase, no diacritics).
var synonymGroups = [][]string{
	{"demam", "fever", "panas", "meriang", "febris"},
	{"sakit", "nyeri", "pain", "ache", "perih", "linu"},
	{"pusing", "headache", "migrain", "migraine", "vertigo"},
	{"kepala", "head"},
	{"batuk", "cough", "batuk2"},
	{"pilek", "flu", "influenza", "selesma"},
	{"obat", "medicine", "medication", "drug", "medikasi"},
	{"dokter", "doctor", "physician", "dokternya"},
	{"muntah", "vomit", "vomiting", "muntahan"},
	{"mual", "nausea", "eneg"},
	{"diare", "mencret", "diarrhea", "diarrhoea"},
	{"dengue", "dbd"},
	{"vaksin", "vaksinasi", "imunisasi", "vaccine", "vaccination", "immunization"},
	{"hamil", "kehamilan", "pregnant", "pregnancy", "mengandung"},
	{"bayi", "baby", "infant", "newborn"},
	{"anak", "child", "children", "kids", "balita"},
	{"konsultasi", "konsul", "consultation", "consult"},
	{"jadwal", "schedule", "appointment", "janji"},
	{"biaya", "harga", "tarif", "cost", "price", "fee"},
	{"darah", "blood"},
	{"hipertensi", "hypertension"},
	{"diabetes", "kencing", "gula"},
	{"alergi", "allergy", "alergik"},
	{"gatal", "itch", "itchy", "gatal2"},
	{"ruam", "rash", "bintik", "bruntusan"},
	{"sesak", "breathless", "shortness"},
	{"napas", "nafas", "breath", "breathing", "pernapasan", "pernafasan"},
	{"perut", "lambung", "stomach", "abdomen"},
	{"maag", "gastritis", "dispepsia"},
	{"luka", "wound", "injury", "cedera"},
	{"cegah", "mencegah", "pencegahan", "prevent", "prevention"},
	{"gejala", "symptom", "symptoms", "tanda", "ciri"},
	{"penyebab", "sebab", "cause", "causes"},
	{"obati", "mengobati", "pengobatan", "treatment", "terapi", "therapy", "treat", "penanganan"},
	{"sembuh", "pulih", "recover", "recovery", "cure"},
	{"tidur", "sleep", "insomnia"},
	{"resep", "prescription"},
	{"apotek", "apotik", "pharmacy", "farmasi"},
	{"klinik", "clinic", "puskesmas"},
	{"darurat", "emergency", "gawat", "urgent"},
}

var synonymIndex = buildSynonymIndex(synonymGroups)

func buildSynonymIndex(groups [][]string) map[string]int {
	index := make(map[string]int)
	for i, group := range groups {
		for _, term := range group {
			if _, exists := index[term]; !exists {
				index[term] = i
			}
		}
	}
	return index
}

// areSynonyms reports whether two distinct terms share a synonym group.
func areSynonyms(a, b string) bool {
	ga, ok := synonymIndex[a]
	if !ok {
		return false
	}
	gb, ok := synonymIndex[b]
	return ok && ga == gb
}
