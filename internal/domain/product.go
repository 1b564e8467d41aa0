package domain

// Product is a catalog entry used for similarity recommendations.
type Product struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}
