package recovery

// ThresholdPolicy decides whether accumulated approval weight is enough to
// execute a recovery. The required weight is fixed at construction and is
// not derived from the registry's total weight.
type ThresholdPolicy struct {
	required uint64
}

func NewThresholdPolicy(required uint64) ThresholdPolicy {
	return ThresholdPolicy{required: required}
}

func (p ThresholdPolicy) Required() uint64 {
	return p.required
}

func (p ThresholdPolicy) Met(accumulated uint64) bool {
	return accumulated >= p.required
}
