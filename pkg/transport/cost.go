package transport

// LinkCost is the edge cost a direct link of kind contributes to the graph.
func LinkCost(k Kind) float64 {
	switch k {
	case KindQUIC:
		return 1.0
	case KindTCP:
		return 2.0
	case KindMem:
		return 0.5
	default:
		return 10.0
	}
}
