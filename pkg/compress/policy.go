package compress

// Strategy says how a rendered document should be stored.
type Strategy string

const (
	// StrategyStore keeps the document as-is. Tiny documents gain
	// nothing from compression and the zstd frame adds overhead.
	StrategyStore Strategy = "store"

	// StrategyCompress compresses the document before storing.
	StrategyCompress Strategy = "compress"
)

// PolicyConfig sets the thresholds for choosing a storage strategy.
type PolicyConfig struct {
	// MinSizeForCompression is the smallest payload, in bytes, worth
	// compressing. Default: 1KiB.
	MinSizeForCompression int
}

// DefaultPolicyConfig returns the default policy thresholds.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		MinSizeForCompression: 1024,
	}
}

// Policy decides whether archived documents are worth compressing.
type Policy struct {
	config *PolicyConfig
}

// NewPolicy creates a policy with the given thresholds.
func NewPolicy(config *PolicyConfig) *Policy {
	if config == nil {
		config = DefaultPolicyConfig()
	}
	return &Policy{config: config}
}

// Choose returns the storage strategy for a payload of the given size.
func (p *Policy) Choose(size int) Strategy {
	if size >= p.config.MinSizeForCompression {
		return StrategyCompress
	}
	return StrategyStore
}

// ShouldCompress reports whether a payload of the given size is worth
// compressing.
func (p *Policy) ShouldCompress(size int) bool {
	return p.Choose(size) == StrategyCompress
}
