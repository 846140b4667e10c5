package inventory

// Fact is a single name/value pair reported by PuppetDB for a host.
type Fact struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Document is the fact upload payload Foreman expects.
type Document struct {
	Name     string         `json:"name"`
	Certname string         `json:"certname"`
	Facts    map[string]any `json:"facts"`
}

// Squash flattens a PuppetDB fact list into a Foreman fact document. When a fact name
// repeats the later value wins.
func Squash(host string, facts []Fact) Document {
	doc := Document{
		Name:     host,
		Certname: host,
		Facts:    make(map[string]any, len(facts)),
	}
	for _, fact := range facts {
		doc.Facts[fact.Name] = fact.Value
	}
	return doc
}
