package validator

// Extractor pulls the raw line list out of one known payload shape
type Extractor struct {
	Name    string
	Extract func(payload any) ([]any, bool)
}

// Extractors lists the payload shapes the marketplace API and older app
// versions have used, in the order they are probed. First match wins.
var Extractors = []Extractor{
	{Name: "array", Extract: flatArray},
	pathExtractor("data", "cart", "products"),
	pathExtractor("data", "cart", "items"),
	pathExtractor("cart", "products"),
	pathExtractor("cart", "items"),
	pathExtractor("data", "products"),
	pathExtractor("data", "items"),
	pathExtractor("products"),
	pathExtractor("items"),
	pathExtractor("data"),
}

// ExtractLines returns the first line list found by Extractors and the name
// of the extractor that found it.
func ExtractLines(payload any) ([]any, string, bool) {
	for _, ex := range Extractors {
		if lines, ok := ex.Extract(payload); ok {
			return lines, ex.Name, true
		}
	}
	return nil, "", false
}

func flatArray(payload any) ([]any, bool) {
	lines, ok := payload.([]any)
	return lines, ok
}

func pathExtractor(keys ...string) Extractor {
	name := ""
	for i, k := range keys {
		if i > 0 {
			name += "."
		}
		name += k
	}
	return Extractor{
		Name: name,
		Extract: func(payload any) ([]any, bool) {
			current := payload
			for _, key := range keys {
				obj, ok := current.(map[string]any)
				if !ok {
					return nil, false
				}
				if current, ok = obj[key]; !ok {
					return nil, false
				}
			}
			lines, ok := current.([]any)
			return lines, ok
		},
	}
}
