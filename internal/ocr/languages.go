package ocr

import "slices"

// Engine names.
const (
	Tesseract = "tesseract"
	Remote    = "remote"
)

// Languages maps a language code to each engine's identifier for it.
var Languages = map[string]map[string]string{
	"ja":      {Tesseract: "jpn", Remote: "japan"},
	"zh":      {Tesseract: "chi_sim", Remote: "ch"},
	"zh-Hant": {Tesseract: "chi_tra", Remote: "chinese_cht"},
	"ko":      {Tesseract: "kor", Remote: "korean"},
	"en":      {Tesseract: "eng", Remote: "en"},
	"ru":      {Tesseract: "rus", Remote: "ru"},
	"de":      {Tesseract: "deu", Remote: "german"},
	"fr":      {Tesseract: "fra", Remote: "french"},
	"es":      {Tesseract: "spa", Remote: "es"},
}

// ResolveLanguage returns engine's identifier for code. Engines absent from
// the table receive the code unchanged.
func ResolveLanguage(engine, code string) (string, bool) {
	ids, ok := Languages[code]
	if !ok {
		return "", false
	}
	if id, ok := ids[engine]; ok {
		return id, true
	}
	for _, known := range []string{Tesseract, Remote} {
		if engine == known {
			return "", false
		}
	}
	return code, true
}

// LanguageCodes lists the supported codes in sorted order.
func LanguageCodes() []string {
	codes := make([]string, 0, len(Languages))
	for c := range Languages {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}
