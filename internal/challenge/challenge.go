package challenge

import (
	"fmt"
	"math/rand/v2"
)

const optionCount = 4

// Challenge is a generated human check: a small arithmetic question with
// one correct option hidden among distractors.
type Challenge struct {
	Question string
	Answer   int
	Options  []int
}

// Generate draws two small positive integers and builds four distinct
// positive answer options containing the sum exactly once. Generation is
// pure; the caller owns session bookkeeping.
func Generate() Challenge {
	a := rand.IntN(10) + 1
	b := rand.IntN(10) + 1
	answer := a + b

	options := []int{answer}
	for len(options) < optionCount {
		candidate := answer + rand.IntN(10) - 5
		if candidate <= 0 || candidate == answer || contains(options, candidate) {
			continue
		}
		options = append(options, candidate)
	}

	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return Challenge{
		Question: fmt.Sprintf("%d + %d = ?", a, b),
		Answer:   answer,
		Options:  options,
	}
}

func contains(values []int, v int) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
