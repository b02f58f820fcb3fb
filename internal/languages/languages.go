// Package languages holds the supported caption languages.
package languages

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Source lists recognition languages by BCP-47 tag
var Source = map[string]string{
	"en-IN": "English (India)",
	"hi-IN": "Hindi",
	"bn-IN": "Bengali",
	"te-IN": "Telugu",
	"mr-IN": "Marathi",
	"ta-IN": "Tamil",
	"gu-IN": "Gujarati",
	"kn-IN": "Kannada",
	"ml-IN": "Malayalam",
	"pa-IN": "Punjabi",
	"or-IN": "Odia",
}

// Target lists translation targets by ISO 639-1 code
var Target = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"te": "Telugu",
	"mr": "Marathi",
	"ta": "Tamil",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"or": "Odia",
}

// Base returns the primary subtag: "en-IN" and "en_in" both give "en"
func Base(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// SameBase reports whether two tags name the same base language
func SameBase(a, b string) bool {
	return Base(a) != "" && Base(a) == Base(b)
}

// Name returns a display name for a tag, falling back to the tag itself
func Name(tag string) string {
	if name, ok := Target[Base(tag)]; ok {
		return name
	}
	if name, ok := Source[tag]; ok {
		return name
	}
	return tag
}

// Response is the body of GET /api/languages
type Response struct {
	SourceLanguages map[string]string `json:"source_languages"`
	TargetLanguages map[string]string `json:"target_languages"`
}

// Handler serves the supported language lists
func Handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		SourceLanguages: Source,
		TargetLanguages: Target,
	})
}
