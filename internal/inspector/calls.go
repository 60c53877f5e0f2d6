package inspector

import (
	"regexp"
	"sort"
)

// CollaboratorCall is a call on an injected collaborator found in the source,
// e.g. userValidator.checkEmail(...) or orderMapper.insert(...).
type CollaboratorCall struct {
	Receiver string // field name, e.g. userValidator
	Kind     string // validator, service, dao, mapper, repository
	Method   string
}

// Collaborator call patterns by suffix convention. Matches lowerCamel field
// names ending in the collaborator suffix followed by a method invocation.
var callPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"validator", regexp.MustCompile(`\b(\w+Validator)\.(\w+)\s*\(`)},
	{"service", regexp.MustCompile(`\b(\w+Service)\.(\w+)\s*\(`)},
	{"dao", regexp.MustCompile(`\b(\w+Dao)\.(\w+)\s*\(`)},
	{"mapper", regexp.MustCompile(`\b(\w+Mapper)\.(\w+)\s*\(`)},
	{"repository", regexp.MustCompile(`\b(\w+Repository)\.(\w+)\s*\(`)},
}

// ExtractCalls finds collaborator method calls in Java source content.
// Results are deduplicated and sorted by receiver then method.
func ExtractCalls(content string) []CollaboratorCall {
	seen := make(map[string]bool)
	var calls []CollaboratorCall

	for _, p := range callPatterns {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			receiver, method := m[1], m[2]
			// Skip class-name receivers (UpperCamel): those are static calls,
			// not injected collaborators
			if receiver[0] >= 'A' && receiver[0] <= 'Z' {
				continue
			}
			key := receiver + "." + method
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, CollaboratorCall{
				Receiver: receiver,
				Kind:     p.kind,
				Method:   method,
			})
		}
	}

	sort.Slice(calls, func(i, j int) bool {
		if calls[i].Receiver != calls[j].Receiver {
			return calls[i].Receiver < calls[j].Receiver
		}
		return calls[i].Method < calls[j].Method
	})
	return calls
}
