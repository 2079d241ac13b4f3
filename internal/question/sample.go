package question

import _ "embed"

//go:embed sample_questions.json
var sampleJSON []byte

// Sample returns the built-in demo question set, used when no --questions
// path is configured. The embedded file is validated at startup like any
// other set.
func Sample() ([]Question, error) {
	return Parse(sampleJSON)
}
