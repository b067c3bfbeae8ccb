package models

// BlockingTransform names a blocking key value transform
type BlockingTransform string

const (
	TransformLowercase BlockingTransform = "lowercase"
	TransformPrefix    BlockingTransform = "prefix"
	TransformSoundex   BlockingTransform = "soundex"
	TransformMetaphone BlockingTransform = "metaphone"
	TransformNgram     BlockingTransform = "ngram"
)

// BlockingKey defines how to derive one family of blocking keys
type BlockingKey struct {
	Name      string            `json:"name" yaml:"name" validate:"required"`
	Fields    []string          `json:"fields" yaml:"fields" validate:"required,min=1"`
	Transform BlockingTransform `json:"transform" yaml:"transform" validate:"required"`
	Params    map[string]any    `json:"params,omitempty" yaml:"params,omitempty"`
}

// DefaultBlockingKeys is used when no blocking configuration is supplied
func DefaultBlockingKeys() []BlockingKey {
	return []BlockingKey{
		{Name: "name_soundex", Fields: []string{"name"}, Transform: TransformSoundex},
		{Name: "name_prefix", Fields: []string{"name"}, Transform: TransformPrefix, Params: map[string]any{"length": 3}},
		{Name: "email", Fields: []string{"emails.email"}, Transform: TransformLowercase},
		{Name: "phone", Fields: []string{"phones.number"}, Transform: "digits_only"},
		{Name: "domain", Fields: []string{"domains"}, Transform: TransformLowercase},
	}
}

// DefaultFieldWeights is used when no field weights are supplied
func DefaultFieldWeights() map[string]float64 {
	return map[string]float64{
		"email":   1.0,
		"phone":   1.0,
		"domain":  1.0,
		"website": 0.9,
		"name":    0.6,
		"company": 0.3,
		"sources": 0.2,
	}
}
