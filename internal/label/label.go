// Package label holds the closed tag taxonomy attached to tracks and maps
// free text onto it.
package label

import (
	"strings"
	"unicode"
)

type Category string

const (
	Genre    Category = "GENRE"
	Mood     Category = "MOOD"
	Scenario Category = "SCENARIO"
	Language Category = "LANGUAGE"
	Era      Category = "ERA"
)

// Name is a label value. Every name except Unknown belongs to exactly one category.
type Name string

const Unknown Name = "UNKNOWN"

var taxonomy = map[Category][]Name{
	Genre: {
		"POP", "ROCK", "FOLK", "JAZZ", "CLASSICAL", "ELECTRONIC", "HIP_HOP", "RNB",
		"COUNTRY", "METAL", "BLUES", "REGGAE", "LATIN", "PUNK", "SOUNDTRACK",
		"NEW_AGE", "WORLD", "INDIE",
	},
	Mood: {
		"HAPPY", "SAD", "ENERGETIC", "CALM", "ROMANTIC", "MELANCHOLY", "NOSTALGIC",
		"ANGRY", "HOPEFUL", "LONELY", "RELAXED", "EXCITED",
	},
	Scenario: {
		"WORKOUT", "STUDY", "SLEEP", "PARTY", "DRIVING", "COMMUTE", "WORK",
		"RELAX", "TRAVEL", "DINNER", "MEDITATION", "RAINY_DAY",
	},
	Language: {
		"CHINESE", "CANTONESE", "ENGLISH", "JAPANESE", "KOREAN", "SPANISH",
		"FRENCH", "GERMAN", "INSTRUMENTAL",
	},
	Era: {
		"FIFTIES", "SIXTIES", "SEVENTIES", "EIGHTIES", "NINETIES",
		"TWO_THOUSANDS", "TWENTY_TENS", "TWENTY_TWENTIES",
	},
}

var aliases = map[Category]map[string]Name{
	Genre: {
		"hip hop": "HIP_HOP", "hiphop": "HIP_HOP", "rap": "HIP_HOP",
		"r&b": "RNB", "r and b": "RNB", "rhythm and blues": "RNB", "soul": "RNB",
		"electronica": "ELECTRONIC", "edm": "ELECTRONIC", "dance": "ELECTRONIC", "house": "ELECTRONIC",
		"heavy metal": "METAL", "ost": "SOUNDTRACK", "film score": "SOUNDTRACK",
		"alternative": "INDIE", "indie rock": "INDIE",
		"流行": "POP", "摇滚": "ROCK", "民谣": "FOLK", "爵士": "JAZZ", "古典": "CLASSICAL",
		"电子": "ELECTRONIC", "说唱": "HIP_HOP", "原声": "SOUNDTRACK",
	},
	Mood: {
		"joyful": "HAPPY", "cheerful": "HAPPY", "upbeat": "HAPPY",
		"chill": "CALM", "peaceful": "CALM", "soothing": "CALM",
		"sorrowful": "SAD", "heartbroken": "SAD",
		"melancholic": "MELANCHOLY", "energetic and upbeat": "ENERGETIC",
		"快乐": "HAPPY", "悲伤": "SAD", "平静": "CALM", "浪漫": "ROMANTIC", "怀旧": "NOSTALGIC",
	},
	Scenario: {
		"gym": "WORKOUT", "exercise": "WORKOUT", "running": "WORKOUT", "fitness": "WORKOUT",
		"focus": "STUDY", "studying": "STUDY", "reading": "STUDY",
		"road trip": "DRIVING", "drive": "DRIVING", "bedtime": "SLEEP",
		"relaxing": "RELAX", "chill out": "RELAX", "rainy": "RAINY_DAY", "rain": "RAINY_DAY",
		"运动": "WORKOUT", "学习": "STUDY", "睡眠": "SLEEP", "派对": "PARTY", "开车": "DRIVING",
	},
	Language: {
		"mandarin": "CHINESE", "mandarin chinese": "CHINESE", "国语": "CHINESE", "中文": "CHINESE", "华语": "CHINESE",
		"粤语": "CANTONESE", "英语": "ENGLISH", "日语": "JAPANESE", "韩语": "KOREAN",
		"no vocals": "INSTRUMENTAL", "none": "INSTRUMENTAL", "纯音乐": "INSTRUMENTAL",
	},
	Era: decadeAliases(),
}

func decadeAliases() map[string]Name {
	decades := []struct {
		short string
		year  string
		name  Name
	}{
		{"50", "1950", "FIFTIES"},
		{"60", "1960", "SIXTIES"},
		{"70", "1970", "SEVENTIES"},
		{"80", "1980", "EIGHTIES"},
		{"90", "1990", "NINETIES"},
		{"00", "2000", "TWO_THOUSANDS"},
		{"10", "2010", "TWENTY_TENS"},
		{"20", "2020", "TWENTY_TWENTIES"},
	}
	m := make(map[string]Name)
	for _, d := range decades {
		m[d.short+"s"] = d.name
		m[d.short+"'s"] = d.name
		m[d.year+"s"] = d.name
		m[d.year+"'s"] = d.name
		m[d.short+"年代"] = d.name
	}
	m["noughties"] = "TWO_THOUSANDS"
	return m
}

var (
	index      = map[Category]map[string]Name{}
	categoryOf = map[Name]Category{}
)

func init() {
	for c, names := range taxonomy {
		index[c] = make(map[string]Name)
		for _, n := range names {
			index[c][normalize(string(n))] = n
			categoryOf[n] = c
		}
		for alias, n := range aliases[c] {
			index[c][normalize(alias)] = n
		}
	}
}

// normalize upper-cases s and collapses every run of non letters/digits
// into a single underscore.
func normalize(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pending = true
	}
	return b.String()
}

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{Genre, Mood, Scenario, Language, Era}
}

// ParseCategory accepts "genre", "Genres", "MOOD" and so on.
func ParseCategory(s string) (Category, bool) {
	n := normalize(s)
	n = strings.TrimSuffix(n, "S")
	for _, c := range Categories() {
		if string(c) == n {
			return c, true
		}
	}
	return "", false
}

// Names returns the closed set for c, without Unknown.
func Names(c Category) []Name {
	return append([]Name(nil), taxonomy[c]...)
}

// Category returns the owning category, or "" for Unknown and foreign values.
func (n Name) Category() Category {
	return categoryOf[n]
}

// Valid reports whether n is Unknown or a member of c.
func (n Name) Valid(c Category) bool {
	return n == Unknown || categoryOf[n] == c
}

// Match maps free text onto a name of category c, case-insensitively.
// Anything unrecognised, including a name from another category, is Unknown.
func Match(c Category, text string) Name {
	if n, ok := index[c][normalize(text)]; ok {
		return n
	}
	return Unknown
}
