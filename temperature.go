package decomposer

// Temperature bounds and defaults for decomposition requests.
// Temperature controls the randomness/creativity of LLM responses.
const (
	// DefaultTemperature is used when a request does not specify one.
	DefaultTemperature float32 = 0.7

	// MinTemperature is the lowest temperature accepted by any provider.
	MinTemperature float32 = 0

	// MaxTemperature is the highest temperature accepted by any provider.
	MaxTemperature float32 = 2
)

// validTemperature reports whether t lies in [MinTemperature, MaxTemperature].
func validTemperature(t float32) bool {
	return t >= MinTemperature && t <= MaxTemperature
}
